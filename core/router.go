package core

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Router dispatches messages to the Executor of their destination chain.
type Router struct {
	mu              sync.RWMutex
	executors       map[string]Executor
	defaultGateways map[string]string
}

func NewRouter() *Router {
	return &Router{
		executors:       make(map[string]Executor),
		defaultGateways: make(map[string]string),
	}
}

// Register installs e as the executor of its chain. A gateway that is not
// empty becomes the default destination gateway of that chain.
func (r *Router) Register(e Executor, defaultGateway string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.ChainName()] = e
	if defaultGateway != "" {
		r.defaultGateways[e.ChainName()] = defaultGateway
	}
}

func (r *Router) Executor(chain string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[chain]
	return e, ok
}

func (r *Router) Chains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for name := range r.executors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Prepare fills the destination gateway of msg from the configured default when it is empty.
func (r *Router) Prepare(msg *CanonicalMessage) {
	if msg.DestinationGateway != "" {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg.DestinationGateway = r.defaultGateways[msg.DestinationChain]
}

// Route executes msg on its destination chain.
func (r *Router) Route(ctx context.Context, msg *CanonicalMessage) (*ExecutionResult, error) {
	r.Prepare(msg)
	e, ok := r.Executor(msg.DestinationChain)
	if !ok {
		return nil, Mark(
			errors.Newf("no executor registered for destination chain %q", msg.DestinationChain),
			ErrUnknownDestination,
		)
	}
	return e.Execute(ctx, msg)
}
