package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/rxble/pkg/central"
)

// ErrConnectionLost indicates the connection dropped while a command was streaming.
var ErrConnectionLost = errors.New("connection lost")

var kindMessages = map[central.ErrorKind]string{
	central.KindUnsupported:                      "Bluetooth LE is not supported on this system",
	central.KindUnauthorized:                     "this program is not authorized to use Bluetooth; check the system privacy settings",
	central.KindPoweredOff:                       "Bluetooth is turned off",
	central.KindUnknownState:                     "the Bluetooth adapter state is not known yet",
	central.KindResetting:                        "the Bluetooth adapter is resetting",
	central.KindPeripheralConnectionFailed:       "could not connect to the device",
	central.KindPeripheralDisconnected:           "the device disconnected",
	central.KindPeripheralRSSIReadFailed:         "could not read the signal strength",
	central.KindServicesDiscoveryFailed:          "service discovery failed",
	central.KindIncludedServicesDiscoveryFailed:  "included service discovery failed",
	central.KindCharacteristicsDiscoveryFailed:   "characteristic discovery failed",
	central.KindDescriptorsDiscoveryFailed:       "descriptor discovery failed",
	central.KindCharacteristicReadFailed:         "reading the characteristic failed",
	central.KindCharacteristicWriteFailed:        "writing the characteristic failed",
	central.KindCharacteristicNotifyChangeFailed: "changing the notification state failed",
}

// FormatUserError turns an error into a message for the terminal. Bluetooth errors are
// described by their kind, with the subject and native cause appended.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "operation timed out"
	}

	var nf *central.NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}

	var be *central.BluetoothError
	if errors.As(err, &be) {
		msg, ok := kindMessages[be.Kind]
		if !ok {
			return err.Error()
		}
		switch {
		case be.Characteristic != nil:
			msg = fmt.Sprintf("%s (characteristic %s)", msg, be.Characteristic.UUID)
		case be.Service != nil:
			msg = fmt.Sprintf("%s (service %s)", msg, be.Service.UUID)
		case be.Peripheral != nil:
			msg = fmt.Sprintf("%s (%s)", msg, be.Peripheral)
		}
		if be.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, be.Err)
		}
		return msg
	}

	return err.Error()
}
