package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/internal/binding/goble"
	"github.com/srg/rxble/pkg/central"
	"github.com/srg/rxble/pkg/rx"
	"github.com/stretchr/testify/suite"
)

// CentralSuite runs tests against a central.Manager wired to a FakeBinding.
//
// Basic usage:
//
//	type ReadSuite struct {
//	    testutils.CentralSuite
//	}
//
//	func (s *ReadSuite) TestRead() {
//	    profile := s.ConnectedPeripheral(s.WithPeripheral().
//	        WithService("180F").
//	        WithCharacteristic("2A19", "read,notify", []byte{50}))
//	    c := profile.Characteristic("180F", "2A19")
//	    got, err := rx.First(context.Background(), s.Manager.ReadValue(c))
//	    ...
//	}
type CentralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Binding *FakeBinding
	Manager *central.Manager
}

// SetupSuite initializes the helper and logger once for the suite.
func (s *CentralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

// SetupTest creates a fresh powered on binding and manager for each test.
func (s *CentralSuite) SetupTest() {
	s.Binding = NewFakeBinding(s.Logger)
	s.Manager = central.NewManager(s.Binding, rx.Immediate, s.Logger)
}

// TearDownTest verifies the scripted binding expectations.
func (s *CentralSuite) TearDownTest() {
	s.Binding.AssertExpectations(s.T())
}

// WithPeripheral starts the configuration of a peripheral profile.
func (s *CentralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder()
}

// KnownPeripheral registers the profile built by b without connecting it.
func (s *CentralSuite) KnownPeripheral(b *PeripheralDeviceBuilder) *PeripheralProfile {
	profile := b.BuildProfile()
	s.Binding.AddPeripheral(profile)
	return profile
}

// ConnectedPeripheral registers the profile built by b and marks it connected.
func (s *CentralSuite) ConnectedPeripheral(b *PeripheralDeviceBuilder) *PeripheralProfile {
	profile := s.KnownPeripheral(b)
	s.Binding.SetPeripheralState(profile.Peripheral.ID, central.PeripheralConnected)
	return profile
}

// DefaultPeripheral is a connected peripheral with the Battery Service (180F) and a
// Battery Level characteristic (2A19) set to 50%.
func (s *CentralSuite) DefaultPeripheral() *PeripheralProfile {
	return s.ConnectedPeripheral(s.WithPeripheral().FromJSON(`
		{
			"name": "Battery",
			"services": [
				{
					"uuid": "180F",
					"characteristics": [
						{ "uuid": "2A19", "properties": "read,write,notify", "value": [50] }
					]
				}
			]
		}`))
}

// MockBLEPeripheralSuite runs goble binding tests against a mocked go-ble device. The
// device factory is swapped in SetupTest and restored afterwards.
//
// Custom device profile usage:
//
//	func (s *BindingSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read,notify", []byte{80})
//	    s.MockBLEPeripheralSuite.SetupTest() // call parent last to apply configuration
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalDeviceFactory func() (goble.Device, error)
	TestTimeout           time.Duration

	PeripheralBuilder *PeripheralDeviceBuilder
	Peripheral        *MockPeripheral
}

// SetupSuite initializes the helper and remembers the real device factory.
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 2 * time.Second
	s.OriginalDeviceFactory = goble.DeviceFactory

	s.T().Cleanup(func() {
		goble.DeviceFactory = s.OriginalDeviceFactory
	})
}

// SetupTest builds the mocked device and installs it as the device factory.
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder().
			WithName("Battery").
			WithService("180F").
			WithCharacteristic("2A19", "read,notify", []byte{50})
	}

	s.Peripheral = s.PeripheralBuilder.Build()
	goble.DeviceFactory = func() (goble.Device, error) {
		return s.Peripheral.Device, nil
	}
	s.Logger.Debug("Mock device factory installed")
}

// TearDownTest restores the device factory and resets the builder.
func (s *MockBLEPeripheralSuite) TearDownTest() {
	goble.DeviceFactory = s.OriginalDeviceFactory
	s.PeripheralBuilder = nil
	s.Peripheral = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}
