package central

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/pkg/rx"
)

// Manager is the entry point of the central role. It bundles a Scanner, a Connector
// and Operations sharing one binding.
type Manager struct {
	*Scanner
	*Connector
	*Operations

	binding AdapterBinding
	queue   *rx.OperationQueue
}

// NewManager wires the central components over binding. Scan sessions are serialized
// on sched, which must be the scheduler the binding publishes its events on.
func NewManager(binding AdapterBinding, sched rx.Scheduler, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	queue := rx.NewOperationQueue("scan", sched, logger)
	return &Manager{
		Scanner:    NewScanner(binding, queue, logger),
		Connector:  NewConnector(binding, logger),
		Operations: NewOperations(binding, logger),
		binding:    binding,
		queue:      queue,
	}
}

// Binding returns the underlying adapter binding.
func (m *Manager) Binding() AdapterBinding {
	return m.binding
}

// PeripheralState returns the live connection state of p.
func (m *Manager) PeripheralState(p Peripheral) PeripheralState {
	return m.binding.PeripheralState(p.ID)
}
