//go:build !darwin && !linux

package goble

func newPlatformDevice() (Device, error) {
	return nil, ErrUnsupportedPlatform
}
