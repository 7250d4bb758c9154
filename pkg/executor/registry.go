package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cexll/agentexec-go/pkg/discovery"
	"github.com/cexll/agentexec-go/pkg/logs"
)

// Factory builds a fresh executor instance for one invocation.
type Factory func() Executor

// Registry maps executor kinds to factories. Instances are never shared
// across invocations because ApplyOverrides mutates them.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
	logger    logs.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logs.Logger) *Registry {
	return &Registry{
		factories: make(map[Kind]Factory),
		logger:    logs.OrNop(logger),
	}
}

// Register installs a factory for kind, replacing any existing one.
func (r *Registry) Register(kind Kind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Get builds a fresh executor for kind.
func (r *Registry) Get(kind Kind) (Executor, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return factory(), nil
}

// Kinds lists registered kinds in stable order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// KeepWarm refreshes the global discovery cache for kind on a background
// goroutine. Failures are logged, never reported to the caller; the caller
// must not wait for the refresh.
func (r *Registry) KeepWarm(kind Kind) {
	exec, err := r.Get(kind)
	if err != nil {
		return
	}
	go func() {
		stream, err := exec.DiscoverOptions(context.Background(), discovery.Scope{})
		if err != nil {
			r.logger.Printf("executor: warm discovery for %s: %v", kind, err)
			return
		}
		discovery.Drain(stream)
	}()
}

// PreloadAll warms the global discovery cache for every registered kind.
// Called at startup; returns immediately.
func (r *Registry) PreloadAll() {
	for _, kind := range r.Kinds() {
		r.KeepWarm(kind)
	}
}
