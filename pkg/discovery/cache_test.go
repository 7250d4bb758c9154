package discovery

import (
	"fmt"
	"testing"
	"time"
)

func sampleOptions(defaultModel string) Options {
	return Options{
		ModelSelector: ModelSelector{
			DefaultModel: defaultModel,
			Permissions:  []PermissionPolicy{PermissionAuto, PermissionSupervised},
		},
	}
}

func TestCacheGetPut(t *testing.T) {
	c := NewCache(4, time.Minute)
	key := CacheKey{Path: "/repo", CmdKey: "claude", Kind: "CLAUDE_CODE"}

	if _, ok := c.Get(key); ok {
		t.Fatal("empty cache must miss")
	}
	c.Put(key, sampleOptions("anthropic/claude"))
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.ModelSelector.DefaultModel != "anthropic/claude" {
		t.Fatalf("default model = %q", got.ModelSelector.DefaultModel)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(4, 20*time.Millisecond)
	key := CacheKey{CmdKey: "claude", Kind: "CLAUDE_CODE"}
	c.Put(key, sampleOptions("m"))

	if _, ok := c.Get(key); !ok {
		t.Fatal("fresh entry must hit")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Fatal("expired entry must miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not evicted, len = %d", c.Len())
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(2, time.Minute)
	for i := 0; i < 3; i++ {
		c.Put(CacheKey{CmdKey: fmt.Sprintf("k%d", i)}, sampleOptions("m"))
	}
	if _, ok := c.Get(CacheKey{CmdKey: "k0"}); ok {
		t.Fatal("oldest entry must be evicted at capacity")
	}
	if _, ok := c.Get(CacheKey{CmdKey: "k2"}); !ok {
		t.Fatal("newest entry must survive")
	}
}

func TestResolveScopeFallback(t *testing.T) {
	c := NewCache(8, time.Minute)
	defaults := sampleOptions("")

	// Nothing cached: provisional comes from defaults, target is workdir.
	lk := c.Resolve("CLAUDE_CODE", "ck", Scope{Workdir: "/wt", RepoPath: "/repo"}, defaults)
	if lk.Fresh {
		t.Fatal("empty cache cannot be fresh")
	}
	if lk.TargetPath != "/wt" {
		t.Fatalf("target = %q, want /wt", lk.TargetPath)
	}
	if !lk.Provisional.LoadingModels {
		t.Fatal("provisional must carry loading flags")
	}

	// Repo-scope entry becomes the provisional for a workdir request.
	c.Put(CacheKey{Path: "/repo", CmdKey: "ck", Kind: "CLAUDE_CODE"}, sampleOptions("repo-model"))
	lk = c.Resolve("CLAUDE_CODE", "ck", Scope{Workdir: "/wt", RepoPath: "/repo"}, defaults)
	if lk.Fresh {
		t.Fatal("workdir scope has no entry yet")
	}
	if lk.Provisional.ModelSelector.DefaultModel != "repo-model" {
		t.Fatalf("provisional model = %q, want repo-model", lk.Provisional.ModelSelector.DefaultModel)
	}

	// Exact workdir entry is a fresh hit with loading cleared.
	c.Put(CacheKey{Path: "/wt", CmdKey: "ck", Kind: "CLAUDE_CODE"}, sampleOptions("wt-model").WithLoading(true))
	lk = c.Resolve("CLAUDE_CODE", "ck", Scope{Workdir: "/wt", RepoPath: "/repo"}, defaults)
	if !lk.Fresh {
		t.Fatal("expected fresh hit")
	}
	if lk.Hit.LoadingModels {
		t.Fatal("hit must clear loading flags")
	}
	if lk.Hit.ModelSelector.DefaultModel != "wt-model" {
		t.Fatalf("hit model = %q", lk.Hit.ModelSelector.DefaultModel)
	}
}

func TestResolveGlobalFallback(t *testing.T) {
	c := NewCache(8, time.Minute)
	c.Put(CacheKey{CmdKey: "ck", Kind: "OPENCODE"}, sampleOptions("global-model"))

	lk := c.Resolve("OPENCODE", "ck", Scope{Workdir: "/wt"}, sampleOptions(""))
	if lk.Fresh {
		t.Fatal("global entry is provisional for a workdir request")
	}
	if lk.Provisional.ModelSelector.DefaultModel != "global-model" {
		t.Fatalf("provisional model = %q", lk.Provisional.ModelSelector.DefaultModel)
	}

	lk = c.Resolve("OPENCODE", "ck", Scope{}, sampleOptions(""))
	if !lk.Fresh {
		t.Fatal("unscoped request must hit the global entry")
	}
}

func TestWriteBackPopulatesBothScopes(t *testing.T) {
	c := NewCache(8, time.Minute)
	c.WriteBack("OPENCODE", "ck", "/wt", sampleOptions("m"))

	if _, ok := c.Get(CacheKey{Path: "/wt", CmdKey: "ck", Kind: "OPENCODE"}); !ok {
		t.Fatal("target scope not written")
	}
	if _, ok := c.Get(CacheKey{CmdKey: "ck", Kind: "OPENCODE"}); !ok {
		t.Fatal("global scope not written")
	}
}
