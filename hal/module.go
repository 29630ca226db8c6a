package hal

import (
	"sync"

	"github.com/rigado/btstack/module"
)

// Factory is the module descriptor of the HAL. Configure the transport
// with SetTransport (or inject a ready Hal with SetHal) before starting
// the registry.
var Factory = module.NewFactory(func() module.Module { return &Module{} })

var (
	configMu         sync.Mutex
	configuredHal    Hal
	configuredTransp *Transport
)

// SetTransport selects the transport the HAL module opens at Start.
func SetTransport(t Transport) {
	configMu.Lock()
	defer configMu.Unlock()
	configuredTransp = &t
	configuredHal = nil
}

// SetHal injects an already-open Hal, bypassing Open. Used by tests and
// by callers that manage the transport themselves.
func SetHal(h Hal) {
	configMu.Lock()
	defer configMu.Unlock()
	configuredHal = h
	configuredTransp = nil
}

// Module owns the controller transport for the lifetime of the stack.
type Module struct {
	module.Base

	hal Hal
}

func (m *Module) ListDependencies(l *module.List) {}

func (m *Module) Start() {
	configMu.Lock()
	h, t := configuredHal, configuredTransp
	configMu.Unlock()

	switch {
	case h != nil:
		m.hal = h
	case t != nil:
		opened, err := Open(*t)
		if err != nil {
			panic("hal: " + err.Error())
		}
		m.hal = opened
	default:
		panic("hal: no transport configured before Start")
	}
}

func (m *Module) Stop() {
	if err := m.hal.Close(); err != nil {
		logger.Warn("hal close:", err)
	}
	m.hal = nil
}

// Hal returns the open transport.
func (m *Module) Hal() Hal {
	return m.hal
}
