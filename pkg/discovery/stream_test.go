package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateClosesWhenProducerReturns(t *testing.T) {
	stream := Generate(context.Background(), func(emit func(Patch)) {
		emit(ModelsLoaded())
		emit(AgentsLoaded())
	})
	var kinds []PatchKind
	for p := range stream {
		kinds = append(kinds, p.Kind)
	}
	assert.Equal(t, []PatchKind{PatchModelsLoaded, PatchAgentsLoaded}, kinds)
}

func TestGenerateAbandonedConsumerReleasesProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	finished := make(chan struct{})
	// Nobody reads the stream and the emits exceed the channel buffer; the
	// producer must still run to completion so its deferred cleanup fires.
	Generate(ctx, func(emit func(Patch)) {
		for i := 0; i < 100; i++ {
			emit(ModelsLoaded())
		}
		close(finished)
	})
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("producer blocked on abandoned stream")
	}
}

func TestCollectHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := make(chan Patch)
	_, err := Collect(ctx, Stream(blocked))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDrainConsumesStream(t *testing.T) {
	produced := make(chan struct{})
	stream := Generate(context.Background(), func(emit func(Patch)) {
		for i := 0; i < 100; i++ {
			emit(ModelsLoaded())
		}
		close(produced)
	})
	Drain(stream)
	select {
	case <-produced:
	case <-time.After(time.Second):
		t.Fatal("producer never finished")
	}
}

func TestInvalidateKindDropsAllScopes(t *testing.T) {
	cache := NewCache(8, time.Minute)
	cache.Put(CacheKey{Kind: "CLAUDE_CODE"}, Options{})
	cache.Put(CacheKey{Kind: "CLAUDE_CODE", Path: "/work"}, Options{})
	cache.Put(CacheKey{Kind: "OPENCODE"}, Options{})
	require.Equal(t, 3, cache.Len())

	cache.InvalidateKind("CLAUDE_CODE")

	_, ok := cache.Get(CacheKey{Kind: "CLAUDE_CODE"})
	assert.False(t, ok)
	_, ok = cache.Get(CacheKey{Kind: "CLAUDE_CODE", Path: "/work"})
	assert.False(t, ok)
	_, ok = cache.Get(CacheKey{Kind: "OPENCODE"})
	assert.True(t, ok, "other kinds must survive invalidation")
}
