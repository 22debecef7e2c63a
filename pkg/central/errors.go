package central

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tags the condition a BluetoothError reports.
type ErrorKind string

const (
	KindUnsupported                      ErrorKind = "unsupported"
	KindUnauthorized                     ErrorKind = "unauthorized"
	KindPoweredOff                       ErrorKind = "powered_off"
	KindUnknownState                     ErrorKind = "unknown_state"
	KindResetting                        ErrorKind = "resetting"
	KindPeripheralConnectionFailed       ErrorKind = "peripheral_connection_failed"
	KindPeripheralDisconnected           ErrorKind = "peripheral_disconnected"
	KindPeripheralRSSIReadFailed         ErrorKind = "peripheral_rssi_read_failed"
	KindServicesDiscoveryFailed          ErrorKind = "services_discovery_failed"
	KindIncludedServicesDiscoveryFailed  ErrorKind = "included_services_discovery_failed"
	KindCharacteristicsDiscoveryFailed   ErrorKind = "characteristics_discovery_failed"
	KindDescriptorsDiscoveryFailed       ErrorKind = "descriptors_discovery_failed"
	KindCharacteristicReadFailed         ErrorKind = "characteristic_read_failed"
	KindCharacteristicWriteFailed        ErrorKind = "characteristic_write_failed"
	KindCharacteristicNotifyChangeFailed ErrorKind = "characteristic_notify_change_failed"
)

// BluetoothError is the terminal error of every central operation. It carries the
// domain object the failure refers to and the native error reported by the binding.
type BluetoothError struct {
	Kind           ErrorKind
	Peripheral     *Peripheral
	Service        *Service
	Characteristic *Characteristic
	Descriptor     *Descriptor
	Err            error
}

// Error implements the error interface
func (e *BluetoothError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	switch {
	case e.Descriptor != nil:
		fmt.Fprintf(&b, " (descriptor %s)", e.Descriptor.UUID)
	case e.Characteristic != nil:
		fmt.Fprintf(&b, " (characteristic %s)", e.Characteristic.UUID)
	case e.Service != nil:
		fmt.Fprintf(&b, " (service %s)", e.Service.UUID)
	case e.Peripheral != nil:
		fmt.Fprintf(&b, " (peripheral %s)", e.Peripheral.ID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is allows errors.Is to compare BluetoothError values by Kind
func (e *BluetoothError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*BluetoothError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Unwrap exposes the native error.
func (e *BluetoothError) Unwrap() error {
	return e.Err
}

// Sentinel errors, one per kind. Compare with errors.Is.
var (
	ErrUnsupported                      = &BluetoothError{Kind: KindUnsupported}
	ErrUnauthorized                     = &BluetoothError{Kind: KindUnauthorized}
	ErrPoweredOff                       = &BluetoothError{Kind: KindPoweredOff}
	ErrUnknownState                     = &BluetoothError{Kind: KindUnknownState}
	ErrResetting                        = &BluetoothError{Kind: KindResetting}
	ErrPeripheralConnectionFailed       = &BluetoothError{Kind: KindPeripheralConnectionFailed}
	ErrPeripheralDisconnected           = &BluetoothError{Kind: KindPeripheralDisconnected}
	ErrPeripheralRSSIReadFailed         = &BluetoothError{Kind: KindPeripheralRSSIReadFailed}
	ErrServicesDiscoveryFailed          = &BluetoothError{Kind: KindServicesDiscoveryFailed}
	ErrIncludedServicesDiscoveryFailed  = &BluetoothError{Kind: KindIncludedServicesDiscoveryFailed}
	ErrCharacteristicsDiscoveryFailed   = &BluetoothError{Kind: KindCharacteristicsDiscoveryFailed}
	ErrDescriptorsDiscoveryFailed       = &BluetoothError{Kind: KindDescriptorsDiscoveryFailed}
	ErrCharacteristicReadFailed         = &BluetoothError{Kind: KindCharacteristicReadFailed}
	ErrCharacteristicWriteFailed        = &BluetoothError{Kind: KindCharacteristicWriteFailed}
	ErrCharacteristicNotifyChangeFailed = &BluetoothError{Kind: KindCharacteristicNotifyChangeFailed}
)

// IsAdapterStateError reports whether err was caused by an invalid adapter state.
func IsAdapterStateError(err error) bool {
	var berr *BluetoothError
	if !errors.As(err, &berr) {
		return false
	}
	switch berr.Kind {
	case KindUnsupported, KindUnauthorized, KindPoweredOff, KindUnknownState, KindResetting:
		return true
	default:
		return false
	}
}

func peripheralError(kind ErrorKind, p Peripheral, native error) error {
	return &BluetoothError{Kind: kind, Peripheral: &p, Err: native}
}

func serviceError(kind ErrorKind, s Service, native error) error {
	p := s.Peripheral
	return &BluetoothError{Kind: kind, Peripheral: &p, Service: &s, Err: native}
}

func characteristicError(kind ErrorKind, c Characteristic, native error) error {
	p, s := c.Service.Peripheral, c.Service
	return &BluetoothError{Kind: kind, Peripheral: &p, Service: &s, Characteristic: &c, Err: native}
}

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string // "service", "characteristic"
	UUIDs    []UUID // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	default:
		return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
	}
}

// Lookup errors
var (
	ErrServiceNotFound        = errors.New("service not found")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
)

// Is allows errors.Is(err, ErrServiceNotFound) and errors.Is(err, ErrCharacteristicNotFound).
func (e *NotFoundError) Is(target error) bool {
	switch target {
	case ErrServiceNotFound:
		return e.Resource == "service"
	case ErrCharacteristicNotFound:
		return e.Resource == "characteristic"
	}
	return false
}
