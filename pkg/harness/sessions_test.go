package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndListSessions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "qwen_sessions")

	if err := recordSession(dir, "first", "/work/a"); err != nil {
		t.Fatalf("recordSession: %v", err)
	}
	// Ordering is by recorded timestamp, so the second write must be later.
	time.Sleep(10 * time.Millisecond)
	if err := recordSession(dir, "second", "/work/b"); err != nil {
		t.Fatalf("recordSession: %v", err)
	}

	ids, err := ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ids) != 2 || ids[0] != "second" || ids[1] != "first" {
		t.Fatalf("ids = %v, want newest first", ids)
	}
}

func TestListSessionsMissingDir(t *testing.T) {
	ids, err := ListSessions(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if ids != nil {
		t.Fatalf("ids = %v, want nil", ids)
	}
}

func TestListSessionsSkipsGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "junk.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	if err := recordSession(dir, "kept", "/work"); err != nil {
		t.Fatalf("recordSession: %v", err)
	}
	ids, err := ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ids) != 1 || ids[0] != "kept" {
		t.Fatalf("ids = %v", ids)
	}
}

func TestSessionIDSanitizedInFilename(t *testing.T) {
	dir := t.TempDir()
	if err := recordSession(dir, "a/b:c", "/work"); err != nil {
		t.Fatalf("recordSession: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a_b_c.json")); err != nil {
		t.Fatalf("marker file: %v", err)
	}
	ids, err := ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(ids) != 1 || ids[0] != "a/b:c" {
		t.Fatalf("ids = %v, original id must survive", ids)
	}
}
