package mocks

import (
	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockAdvertisement mocks ble.Advertisement.
type MockAdvertisement struct {
	mock.Mock
	ble.Advertisement
}

// LocalName provides a mock function with no fields
func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

// ManufacturerData provides a mock function with no fields
func (m *MockAdvertisement) ManufacturerData() []byte {
	ret := m.Called()
	if v := ret.Get(0); v != nil {
		return v.([]byte)
	}
	return nil
}

// ServiceData provides a mock function with no fields
func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	ret := m.Called()
	if v := ret.Get(0); v != nil {
		return v.([]ble.ServiceData)
	}
	return nil
}

// Services provides a mock function with no fields
func (m *MockAdvertisement) Services() []ble.UUID {
	ret := m.Called()
	if v := ret.Get(0); v != nil {
		return v.([]ble.UUID)
	}
	return nil
}

// OverflowService provides a mock function with no fields
func (m *MockAdvertisement) OverflowService() []ble.UUID {
	ret := m.Called()
	if v := ret.Get(0); v != nil {
		return v.([]ble.UUID)
	}
	return nil
}

// SolicitedService provides a mock function with no fields
func (m *MockAdvertisement) SolicitedService() []ble.UUID {
	ret := m.Called()
	if v := ret.Get(0); v != nil {
		return v.([]ble.UUID)
	}
	return nil
}

// TxPowerLevel provides a mock function with no fields
func (m *MockAdvertisement) TxPowerLevel() int {
	return m.Called().Int(0)
}

// Connectable provides a mock function with no fields
func (m *MockAdvertisement) Connectable() bool {
	return m.Called().Bool(0)
}

// RSSI provides a mock function with no fields
func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

// Addr provides a mock function with no fields
func (m *MockAdvertisement) Addr() ble.Addr {
	ret := m.Called()
	if v := ret.Get(0); v != nil {
		return v.(ble.Addr)
	}
	return nil
}
