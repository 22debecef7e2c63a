package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// Device is the part of ble.Device the binding drives.
type Device interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (ble.Client, error)
	Stop() error
}

// DeviceFactory creates the platform device. It is a variable so that tests can
// replace it with a mock.
var DeviceFactory = func() (Device, error) {
	return newPlatformDevice()
}
