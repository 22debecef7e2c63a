package central

// AdapterState is the power state of the BLE adapter.
type AdapterState int

const (
	StateUnknown AdapterState = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

// String returns a human-readable name of the state.
func (s AdapterState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateResetting:
		return "resetting"
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "powered off"
	case StatePoweredOn:
		return "powered on"
	default:
		return "invalid"
	}
}

// Err maps the state to its adapter-state error. Only StatePoweredOn maps to nil.
func (s AdapterState) Err() error {
	switch s {
	case StatePoweredOn:
		return nil
	case StateUnsupported:
		return ErrUnsupported
	case StateUnauthorized:
		return ErrUnauthorized
	case StatePoweredOff:
		return ErrPoweredOff
	case StateResetting:
		return ErrResetting
	default:
		return ErrUnknownState
	}
}

// PeripheralState is the connection state of a peripheral as reported by the binding.
type PeripheralState int

const (
	PeripheralDisconnected PeripheralState = iota
	PeripheralConnecting
	PeripheralConnected
	PeripheralDisconnecting
)

func (s PeripheralState) String() string {
	switch s {
	case PeripheralConnecting:
		return "connecting"
	case PeripheralConnected:
		return "connected"
	case PeripheralDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}
