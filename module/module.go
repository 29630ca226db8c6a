// Package module implements the lifecycle runtime of the stack: modules
// are long-lived named units brought up in dependency order, each pinned
// to its own single-threaded task queue.
package module

import (
	"fmt"

	"github.com/rigado/btstack"
)

var logger = btstack.GetLogger().ChildLogger(map[string]interface{}{"pkg": "module"})

// Module is a unit managed by the Registry. Implementations embed Base and
// provide the three lifecycle steps. ListDependencies is invoked once,
// before Start; every Factory added to the list is guaranteed started
// before Start runs.
type Module interface {
	ListDependencies(l *List)
	Start()
	Stop()

	base() *Base
}

// Factory is the descriptor identifying a module. Module identity is the
// *Factory pointer; declare one package-level Factory per module.
type Factory struct {
	ctor func() Module
}

func NewFactory(ctor func() Module) *Factory {
	return &Factory{ctor: ctor}
}

// List collects module dependencies.
type List struct {
	list []*Factory
}

func (l *List) Add(f *Factory) {
	l.list = append(l.list, f)
}

// Base carries the runtime bindings of a started module. Embed it by value.
type Base struct {
	registry *Registry
	handler  *Handler
	deps     List
}

func (b *Base) base() *Base { return b }

// Handler returns the module's task queue.
func (b *Base) Handler() *Handler {
	return b.handler
}

// Registry returns the registry the module was started by.
func (b *Base) Registry() *Registry {
	return b.registry
}

// GetDependency returns a started dependency. The factory must have been
// declared in ListDependencies; asking for an undeclared module is a
// programming error and panics.
func (b *Base) GetDependency(f *Factory) Module {
	for _, dep := range b.deps.list {
		if dep == f {
			return b.registry.Get(f)
		}
	}
	panic("module was not listed as a dependency in ListDependencies")
}

// Registry starts and stops modules. It is not safe for concurrent use:
// Start and StopAll run on the setup goroutine, before any module
// callback executes and after all of them have quiesced, respectively.
type Registry struct {
	started    map[*Factory]Module
	startOrder []*Factory
}

func NewRegistry() *Registry {
	return &Registry{started: map[*Factory]Module{}}
}

// Get returns the started instance for f. Asking for a module that is not
// started is a programming error and panics.
func (r *Registry) Get(f *Factory) Module {
	m, ok := r.started[f]
	assertf(ok, "module not started")
	return m
}

// IsStarted reports whether f has been started.
func (r *Registry) IsStarted(f *Factory) bool {
	_, ok := r.started[f]
	return ok
}

// Start starts every module in the transitive closure of list, in
// dependency-first order, each on a fresh handler of t.
func (r *Registry) Start(list *List, t *Thread) {
	for _, f := range list.list {
		r.StartModule(f, t)
	}
}

// StartModule starts f (and, recursively, its dependencies) if it is not
// already started, and returns the instance.
func (r *Registry) StartModule(f *Factory, t *Thread) Module {
	if m, ok := r.started[f]; ok {
		return m
	}

	m := f.ctor()
	b := m.base()
	b.registry = r
	b.handler = t.NewHandler()
	m.ListDependencies(&b.deps)

	r.Start(&b.deps, t)

	m.Start()
	r.startOrder = append(r.startOrder, f)
	r.started[f] = m
	return m
}

// StopAll stops every started module in reverse start order, closing each
// module's handler after its Stop step. The registry is empty afterwards.
func (r *Registry) StopAll() {
	for i := len(r.startOrder) - 1; i >= 0; i-- {
		f := r.startOrder[i]
		m, ok := r.started[f]
		assertf(ok, "start order references unstarted module")

		m.Stop()
		m.base().handler.Close()
		delete(r.started, f)
	}

	assertf(len(r.started) == 0, "registry not empty after StopAll")
	r.startOrder = nil
}

// assertf panics with a diagnostic when a contract is violated. Contract
// violations are programming errors; they are never masked.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
