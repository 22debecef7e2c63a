package goble

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/srg/rxble/pkg/central"
)

var (
	ErrBluetoothOff        = errors.New("bluetooth is turned off")
	ErrNotConnected        = errors.New("device not connected")
	ErrAlreadyConnected    = errors.New("device already connected")
	ErrUnknownHandle       = errors.New("unknown attribute handle")
	ErrUnsupportedPlatform = errors.New("go-ble does not support this platform")
	ErrNoDevice            = errors.New("no BLE device available")
)

// darwin reports CBManagerState values: have=4 is poweredOff, want=5 is poweredOn
var invalidStateRe = regexp.MustCompile(`central manager has invalid state: have=(\d+)`)

// NormalizeError maps known go-ble error strings to the binding's sentinel errors.
// The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case invalidStateRe.MatchString(msg):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}

// AdapterStateFromError extracts the adapter state an error reports, if any.
func AdapterStateFromError(err error) (central.AdapterState, bool) {
	if err == nil {
		return central.StateUnknown, false
	}
	if m := invalidStateRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return coreBluetoothState(code), true
	}
	switch {
	case errors.Is(err, ErrBluetoothOff):
		return central.StatePoweredOff, true
	case errors.Is(err, ErrUnsupportedPlatform):
		return central.StateUnsupported, true
	case containsIgnoreCase(err.Error(), "permission denied"), containsIgnoreCase(err.Error(), "operation not permitted"):
		return central.StateUnauthorized, true
	}
	return central.StateUnknown, false
}

func coreBluetoothState(code int) central.AdapterState {
	switch code {
	case 1:
		return central.StateResetting
	case 2:
		return central.StateUnsupported
	case 3:
		return central.StateUnauthorized
	case 4:
		return central.StatePoweredOff
	case 5:
		return central.StatePoweredOn
	default:
		return central.StateUnknown
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
