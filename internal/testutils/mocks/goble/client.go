package mocks

import (
	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockClient mocks the GATT client methods of ble.Client used by the binding. The
// embedded interface is nil: calling a method that is not mocked here panics.
type MockClient struct {
	mock.Mock
	ble.Client
}

// Addr provides a mock function with no fields
func (m *MockClient) Addr() ble.Addr {
	ret := m.Called()
	if v := ret.Get(0); v != nil {
		return v.(ble.Addr)
	}
	return nil
}

// Name provides a mock function with no fields
func (m *MockClient) Name() string {
	ret := m.Called()
	return ret.String(0)
}

// DiscoverServices provides a mock function with given fields: filter
func (m *MockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	ret := m.Called(filter)
	var svcs []*ble.Service
	if v := ret.Get(0); v != nil {
		svcs = v.([]*ble.Service)
	}
	return svcs, ret.Error(1)
}

// DiscoverIncludedServices provides a mock function with given fields: filter, s
func (m *MockClient) DiscoverIncludedServices(filter []ble.UUID, s *ble.Service) ([]*ble.Service, error) {
	ret := m.Called(filter, s)
	var svcs []*ble.Service
	if v := ret.Get(0); v != nil {
		svcs = v.([]*ble.Service)
	}
	return svcs, ret.Error(1)
}

// DiscoverCharacteristics provides a mock function with given fields: filter, s
func (m *MockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	ret := m.Called(filter, s)
	var chars []*ble.Characteristic
	if v := ret.Get(0); v != nil {
		chars = v.([]*ble.Characteristic)
	}
	return chars, ret.Error(1)
}

// DiscoverDescriptors provides a mock function with given fields: filter, c
func (m *MockClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	ret := m.Called(filter, c)
	var descs []*ble.Descriptor
	if v := ret.Get(0); v != nil {
		descs = v.([]*ble.Descriptor)
	}
	return descs, ret.Error(1)
}

// ReadCharacteristic provides a mock function with given fields: c
func (m *MockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	ret := m.Called(c)
	var data []byte
	if v := ret.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, ret.Error(1)
}

// WriteCharacteristic provides a mock function with given fields: c, value, noRsp
func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	ret := m.Called(c, value, noRsp)
	return ret.Error(0)
}

// Subscribe provides a mock function with given fields: c, ind, h
func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	ret := m.Called(c, ind, h)
	return ret.Error(0)
}

// Unsubscribe provides a mock function with given fields: c, ind
func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	ret := m.Called(c, ind)
	return ret.Error(0)
}

// ReadRSSI provides a mock function with no fields
func (m *MockClient) ReadRSSI() int {
	ret := m.Called()
	return ret.Int(0)
}

// CancelConnection provides a mock function with no fields
func (m *MockClient) CancelConnection() error {
	ret := m.Called()
	return ret.Error(0)
}

// Disconnected provides a mock function with no fields
func (m *MockClient) Disconnected() <-chan struct{} {
	ret := m.Called()
	if v := ret.Get(0); v != nil {
		switch ch := v.(type) {
		case chan struct{}:
			return ch
		case <-chan struct{}:
			return ch
		}
	}
	return nil
}
