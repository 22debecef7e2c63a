// Package mocks provides testify mocks of the go-ble interfaces driven by the goble binding.
package mocks

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockDevice mocks the scanning and dialing part of ble.Device.
type MockDevice struct {
	mock.Mock
}

// Scan provides a mock function with given fields: ctx, allowDup, h
func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	ret := m.Called(ctx, allowDup, h)
	if rf, ok := ret.Get(0).(func(context.Context, bool, ble.AdvHandler) error); ok {
		return rf(ctx, allowDup, h)
	}
	return ret.Error(0)
}

// Dial provides a mock function with given fields: ctx, a
func (m *MockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	ret := m.Called(ctx, a)
	if rf, ok := ret.Get(0).(func(context.Context, ble.Addr) (ble.Client, error)); ok {
		return rf(ctx, a)
	}
	var client ble.Client
	if v := ret.Get(0); v != nil {
		client = v.(ble.Client)
	}
	return client, ret.Error(1)
}

// Stop provides a mock function with no fields
func (m *MockDevice) Stop() error {
	ret := m.Called()
	return ret.Error(0)
}

// MockAddr mocks ble.Addr.
type MockAddr struct {
	mock.Mock
}

// String provides a mock function with no fields
func (m *MockAddr) String() string {
	ret := m.Called()
	return ret.String(0)
}
