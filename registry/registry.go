// Package registry is the process-wide, mutex-guarded home for running
// dtmserver.Server instances, keyed by auto_name: the Go home for what the
// Rust source drives with auto_init!/auto_clear! macros.
//
// Grounded on coreengine/kernel/services.go's ServiceRegistry: an
// RWMutex-guarded map with Register/Get/Unregister-shaped methods, adapted
// here to the single-server-per-name, double-init-is-a-bug semantics
// Design Notes §9 calls for.
package registry

import (
	"fmt"
	"sync"

	"github.com/sedeve-kit/dtm/dtmserver"
)

// InvariantViolationError reports a registry contract breach: initializing
// a name that's already registered, the global test-state equivalent of the
// reorder buffer's double-add error.
type InvariantViolationError struct {
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("registry invariant violated: %s", e.Reason)
}

// Registry is a process-wide map from auto_name to its running server.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*dtmserver.Server
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*dtmserver.Server)}
}

// global is the process-wide registry every testhooks call-site resolves
// against, mirroring the Rust macros' reliance on one ambient registry.
var global = New()

// Default returns the process-wide Registry.
func Default() *Registry {
	return global
}

// Init registers srv under name. A second Init for the same name before
// Clear is an InvariantViolationError: auto_name identifies exactly one
// live test run at a time.
func (r *Registry) Init(name string, srv *dtmserver.Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return &InvariantViolationError{Reason: fmt.Sprintf("server %q already initialized", name)}
	}
	r.byName[name] = srv
	return nil
}

// Clear removes name's entry, if any. Clearing an absent name is a no-op:
// tear-down code doesn't need to track whether Init ever succeeded.
func (r *Registry) Clear(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}

// Get looks up the server registered under name.
func (r *Registry) Get(name string) (*dtmserver.Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	srv, ok := r.byName[name]
	return srv, ok
}
