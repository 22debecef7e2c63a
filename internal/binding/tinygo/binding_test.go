package tinygo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/internal/binding/tinygo"
	"github.com/srg/rxble/internal/groutine"
	mocks "github.com/srg/rxble/internal/testutils/mocks/tinygo"
	"github.com/srg/rxble/pkg/central"
	"github.com/srg/rxble/pkg/rx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"tinygo.org/x/bluetooth"
)

const batteryAddress = "AA:BB:CC:DD:EE:FF"

type BindingTestSuite struct {
	suite.Suite

	logger  *logrus.Logger
	timeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	loop    *groutine.Loop
	adapter *mocks.MockAdapter
	device  *mocks.MockDevice
	service *mocks.MockService
	level   *mocks.MockCharacteristic
	chars   *mock.Call
	binding *tinygo.Binding
	manager *central.Manager

	originalFactory func() tinygo.Adapter
}

func TestBindingTestSuite(t *testing.T) {
	suite.Run(t, new(BindingTestSuite))
}

func (s *BindingTestSuite) SetupSuite() {
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.DebugLevel)
	s.timeout = 2 * time.Second
	s.originalFactory = tinygo.AdapterFactory
}

func (s *BindingTestSuite) TearDownSuite() {
	tinygo.AdapterFactory = s.originalFactory
}

func (s *BindingTestSuite) SetupTest() {
	s.adapter = mocks.NewMockAdapter(
		tinygo.Advertisement{
			Address: "11:22:33:44:55:66",
			RSSI:    -70,
			Data:    central.AdvertisementData{LocalName: "Heart", ServiceUUIDs: []central.UUID{"180d"}},
		},
		tinygo.Advertisement{
			Address: batteryAddress,
			RSSI:    -42,
			Data:    central.AdvertisementData{LocalName: "Battery", ServiceUUIDs: []central.UUID{"180f"}},
		},
	)
	s.adapter.On("Enable").Return(nil)
	s.adapter.On("SetConnectHandler", mock.Anything).Return()
	s.adapter.On("Scan", mock.Anything).Return(nil).Maybe()
	s.adapter.On("StopScan").Return(nil).Maybe()

	s.level = &mocks.MockCharacteristic{ID: bluetooth.New16BitUUID(0x2a19), Value: []byte{50}}
	s.service = &mocks.MockService{ID: bluetooth.New16BitUUID(0x180f)}
	s.chars = s.service.On("DiscoverCharacteristics", mock.Anything).Return([]tinygo.Characteristic{s.level}, nil).Maybe()
	s.device = &mocks.MockDevice{}
	s.device.On("DiscoverServices", mock.Anything).Return([]tinygo.Service{s.service}, nil).Maybe()
	s.device.On("Disconnect").Return(nil).Maybe()
	s.adapter.On("Connect", mock.Anything, batteryAddress).Return(s.device, nil).Maybe()

	adapter := s.adapter
	tinygo.AdapterFactory = func() tinygo.Adapter { return adapter }

	s.ctx, s.cancel = context.WithTimeout(context.Background(), s.timeout)
	s.loop = rx.NewLoop(s.ctx, "tinygo-test-events")
	s.binding = tinygo.New(tinygo.Options{Scheduler: s.loop, Logger: s.logger})
	s.manager = central.NewManager(s.binding, s.loop, s.logger)
}

func (s *BindingTestSuite) TearDownTest() {
	s.NoError(s.binding.Close())
	s.cancel()
}

func (s *BindingTestSuite) connect() central.Peripheral {
	p, err := rx.First(s.ctx, s.manager.Connect(central.Peripheral{ID: batteryAddress}, nil))
	s.Require().NoError(err, "connect MUST succeed")
	return p
}

func (s *BindingTestSuite) batteryLevel() central.Characteristic {
	p := s.connect()
	svc, err := rx.First(s.ctx, s.manager.ServiceWithUUID(p, "180f"))
	s.Require().NoError(err)
	c, err := rx.First(s.ctx, s.manager.CharacteristicWithUUID(svc, "2a19"))
	s.Require().NoError(err)
	return c
}

func (s *BindingTestSuite) TestEnabledAdapterIsPoweredOn() {
	s.Equal(central.StatePoweredOn, s.binding.State(), "enabled adapter MUST report powered on")
	s.adapter.AssertCalled(s.T(), "SetConnectHandler", mock.Anything)
}

func (s *BindingTestSuite) TestScanDiscoversAdvertisements() {
	// GOAL: Verify tinygo scan results are published as discoveries and the scan is stopped on release
	//
	// TEST SCENARIO: scan(nil) → two discoveries → unsubscribe → StopScan

	found, err := rx.Collect(s.ctx, rx.Take(s.manager.Scan(nil, nil), 2))
	s.Require().NoError(err)
	s.Require().Len(found, 2)

	s.Equal("Heart", found[0].Peripheral.Name)
	s.Equal(batteryAddress, found[1].Peripheral.ID)
	s.Equal(-42, found[1].RSSI)

	s.Eventually(func() bool {
		for _, call := range s.adapter.Calls {
			if call.Method == "StopScan" {
				return true
			}
		}
		return false
	}, s.timeout, 10*time.Millisecond, "released scan MUST stop the adapter scan")
}

func (s *BindingTestSuite) TestScanAppliesServiceFilter() {
	// GOAL: Verify the binding drops advertisements without any requested service
	//
	// TEST SCENARIO: scan({180F}) → heart rate monitor skipped → battery emitted

	found, err := rx.First(s.ctx, s.manager.Scan([]central.UUID{"180f"}, nil))

	s.Require().NoError(err)
	s.Equal(batteryAddress, found.Peripheral.ID, "only peripherals advertising 180F MUST be emitted")
}

func (s *BindingTestSuite) TestScanWithEmptyFilterAcceptsEverything() {
	// GOAL: Verify an empty service filter requires nothing, matching the core subset check
	//
	// TEST SCENARIO: scan({}) → heart rate monitor and battery both emitted

	found, err := rx.Collect(s.ctx, rx.Take(s.manager.Scan([]central.UUID{}, nil), 2))

	s.Require().NoError(err)
	s.Require().Len(found, 2, "empty filter MUST NOT drop advertisements")
	s.Equal(batteryAddress, found[1].Peripheral.ID)
}

func (s *BindingTestSuite) TestConnectDiscoverAndRead() {
	// GOAL: Verify the connect → discover → read flow against the tinygo adapter
	//
	// TEST SCENARIO: connect → ServiceWithUUID → CharacteristicWithUUID → ReadValue → [50]

	c := s.batteryLevel()

	s.Equal(central.PeripheralConnected, s.binding.PeripheralState(batteryAddress))
	s.Equal("180f/0", c.Service.ID, "service handle MUST be derived from UUID and discovery position")
	s.Equal("180f/0/2a19/0", c.ID)

	s.level.On("Read", mock.Anything).Return(nil).Once()
	read, err := rx.First(s.ctx, s.manager.ReadValue(c))
	s.Require().NoError(err)
	s.Equal([]byte{50}, read.Value)
}

func (s *BindingTestSuite) TestConnectFailure() {
	// GOAL: Verify a failed dial surfaces as a connection failure carrying the native error
	//
	// TEST SCENARIO: Connect returns error → ErrPeripheralConnectionFailed wrapping it

	refused := errors.New("connection refused")
	s.adapter.On("Connect", mock.Anything, "11:22:33:44:55:66").Return(nil, refused).Once()

	_, err := rx.First(s.ctx, s.manager.Connect(central.Peripheral{ID: "11:22:33:44:55:66"}, nil))

	s.Require().Error(err)
	s.ErrorIs(err, central.ErrPeripheralConnectionFailed)
	s.ErrorIs(err, refused, "native error MUST be preserved")
	s.Equal(central.PeripheralDisconnected, s.binding.PeripheralState("11:22:33:44:55:66"))
}

func (s *BindingTestSuite) TestWriteValue() {
	// GOAL: Verify both write types reach the matching tinygo call
	//
	// TEST SCENARIO: write without response → completes; write with response → confirmed

	c := s.batteryLevel()
	s.level.On("WriteWithoutResponse", []byte{0x11}).Return(nil).Once()
	s.level.On("Write", []byte{0x10}).Return(nil).Once()

	_, err := rx.First(s.ctx, s.manager.WriteValue([]byte{0x11}, c, central.WriteWithoutResponse))
	s.Require().NoError(err, "write without response MUST complete once issued")

	_, err = rx.First(s.ctx, s.manager.WriteValue([]byte{0x10}, c, central.WriteWithResponse))
	s.Require().NoError(err)

	s.level.AssertExpectations(s.T())
}

func (s *BindingTestSuite) TestWriteWithResponseUnsupported() {
	// GOAL: Verify writes with response fail cleanly where the platform only sends write commands
	//
	// TEST SCENARIO: characteristic without Write → write with response fails → write without response succeeds

	s.chars.Unset()
	s.service.On("DiscoverCharacteristics", mock.Anything).
		Return([]tinygo.Characteristic{mocks.WithoutResponseWrites(s.level)}, nil).Maybe()

	c := s.batteryLevel()
	s.level.On("WriteWithoutResponse", []byte{0x11}).Return(nil).Once()

	_, err := rx.First(s.ctx, s.manager.WriteValue([]byte{0x10}, c, central.WriteWithResponse))
	s.Require().Error(err)
	s.ErrorIs(err, central.ErrCharacteristicWriteFailed)
	s.ErrorIs(err, tinygo.ErrUnsupportedOperation, "missing write with response MUST be reported as unsupported")

	_, err = rx.First(s.ctx, s.manager.WriteValue([]byte{0x11}, c, central.WriteWithoutResponse))
	s.Require().NoError(err, "write commands MUST still work")

	s.level.AssertNotCalled(s.T(), "Write", mock.Anything)
	s.level.AssertExpectations(s.T())
}

func (s *BindingTestSuite) TestNotificationsAreForwarded() {
	// GOAL: Verify notifications flow from the tinygo callback to subscribers and are disabled on release
	//
	// TEST SCENARIO: subscribe → enabled → notify → value received → cancel → EnableNotifications(nil)

	c := s.batteryLevel()
	s.level.On("EnableNotifications", true).Return(nil).Once()
	disabled := make(chan struct{})
	s.level.On("EnableNotifications", false).Return(nil).Once().Run(func(mock.Arguments) { close(disabled) })

	notifying := make(chan struct{}, 1)
	watch := rx.Filter(s.binding.Events(), func(ev central.Event) bool {
		return ev.Kind == central.EventNotificationStateUpdated && ev.Characteristic.Notifying
	}).SubscribeFuncs(func(central.Event) {
		select {
		case notifying <- struct{}{}:
		default:
		}
	}, nil, nil)
	defer watch.Cancel()

	updates := make(chan central.Characteristic, 4)
	sub := s.manager.SetNotificationAndMonitorUpdates(c).SubscribeFuncs(func(v central.Characteristic) {
		updates <- v
	}, nil, nil)

	select {
	case <-notifying:
	case <-s.ctx.Done():
		s.FailNow("notifications were not enabled")
	}
	// the enable confirmation was delivered, so the update monitor is subscribed
	done := make(chan struct{})
	s.loop.Schedule(func() { close(done) })
	<-done

	s.True(s.level.Notify([]byte{77}), "notification callback MUST be registered")
	select {
	case got := <-updates:
		s.Equal([]byte{77}, got.Value)
	case <-s.ctx.Done():
		s.FailNow("notification was not delivered")
	}

	sub.Cancel()
	select {
	case <-disabled:
	case <-s.ctx.Done():
		s.FailNow("notifications were not disabled")
	}
}

func (s *BindingTestSuite) TestLinkLossIsReported() {
	// GOAL: Verify a disconnection raised by the connect handler reaches monitors
	//
	// TEST SCENARIO: connected → handler(address, false) → MonitorDisconnection emits

	p := s.connect()

	disconnected := make(chan central.Peripheral, 1)
	sub := s.manager.MonitorDisconnection(p).SubscribeFuncs(func(v central.Peripheral) { disconnected <- v }, nil, nil)
	defer sub.Cancel()

	s.adapter.RaiseConnectionChange(batteryAddress, false)

	select {
	case got := <-disconnected:
		s.True(got.Equal(p))
	case <-s.ctx.Done():
		s.FailNow("disconnection was not reported")
	}
	s.Equal(central.PeripheralDisconnected, s.binding.PeripheralState(p.ID))
}

func (s *BindingTestSuite) TestCancelConnection() {
	p := s.connect()

	_, err := rx.First(s.ctx, s.manager.CancelConnection(p))

	s.Require().NoError(err)
	s.device.AssertCalled(s.T(), "Disconnect")
	s.Equal(central.PeripheralDisconnected, s.binding.PeripheralState(p.ID))
}

func (s *BindingTestSuite) TestReadRSSIIsUnsupported() {
	p := s.connect()

	_, err := rx.First(s.ctx, s.manager.ReadRSSI(p))

	s.ErrorIs(err, central.ErrPeripheralRSSIReadFailed)
	s.ErrorIs(err, tinygo.ErrUnsupportedOperation)
}

func (s *BindingTestSuite) TestIncludedServicesAreEmpty() {
	p := s.connect()
	svc, err := rx.First(s.ctx, s.manager.ServiceWithUUID(p, "180f"))
	s.Require().NoError(err)

	included, err := rx.First(s.ctx, s.manager.DiscoverIncludedServices(svc, nil))

	s.Require().NoError(err)
	s.Empty(included)
}

func (s *BindingTestSuite) TestDescriptorsAreEmpty() {
	c := s.batteryLevel()

	descriptors, err := rx.First(s.ctx, s.manager.DiscoverDescriptors(c))

	s.Require().NoError(err)
	s.NotNil(descriptors)
	s.Empty(descriptors)
}

func TestNewReportsStateFromEnableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want central.AdapterState
	}{
		{"not supported", errors.New("bluetooth not supported on this platform"), central.StateUnsupported},
		{"permission", errors.New("dbus: permission denied"), central.StateUnauthorized},
		{"adapter down", errors.New("adapter hci0 is off"), central.StatePoweredOff},
	}

	orig := tinygo.AdapterFactory
	t.Cleanup(func() { tinygo.AdapterFactory = orig })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := mocks.NewMockAdapter()
			adapter.On("Enable").Return(tt.err)
			tinygo.AdapterFactory = func() tinygo.Adapter { return adapter }

			b := tinygo.New(tinygo.Options{})
			defer b.Close()

			assert.Equal(t, tt.want, b.State())
			adapter.AssertNotCalled(t, "SetConnectHandler", mock.Anything)

			m := central.NewManager(b, rx.Immediate, nil)
			_, err := rx.First(context.Background(), m.Scan(nil, nil))
			assert.ErrorIs(t, err, tt.want.Err(), "operations MUST fail with the adapter state error")
		})
	}
}
