package central_test

import (
	"errors"
	"testing"

	"github.com/srg/rxble/internal/testutils"
	"github.com/srg/rxble/pkg/central"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type NotificationTestSuite struct {
	testutils.CentralSuite

	profile *testutils.PeripheralProfile
	battery central.Characteristic
}

func TestNotificationTestSuite(t *testing.T) {
	suite.Run(t, new(NotificationTestSuite))
}

func (s *NotificationTestSuite) SetupTest() {
	s.CentralSuite.SetupTest()
	s.profile = s.DefaultPeripheral()
	s.battery = s.profile.Characteristic("180F", "2A19")
}

func (s *NotificationTestSuite) TestSubscribersShareOneNotificationSession() {
	// GOAL: Verify concurrent subscribers share one enable and the last one out disables
	//
	// TEST SCENARIO: two subscribers → one enable → updates reach both → first leaves → last leaves → disable

	s.Binding.On("SetNotifyValue", s.battery, true).Run(func(mock.Arguments) {
		s.Binding.EmitNotifyState(s.battery, true, nil)
	}).Once()
	s.Binding.On("SetNotifyValue", s.battery, false).Once()

	first, sub1 := record(s.Manager.SetNotificationAndMonitorUpdates(s.battery))
	second, sub2 := record(s.Manager.SetNotificationAndMonitorUpdates(s.battery))

	s.Equal(1, s.Binding.Calls("SetNotifyValue"), "notifications MUST be enabled once")

	s.Binding.EmitValue(s.battery, []byte{60}, nil)

	s.Require().Len(first.values, 1)
	s.Require().Len(second.values, 1)
	s.Equal([]byte{60}, second.values[0].Value)

	sub1.Cancel()
	s.Equal(1, s.Binding.Calls("SetNotifyValue"), "notifications MUST stay enabled while subscribed")

	sub2.Cancel()
	s.Equal(2, s.Binding.Calls("SetNotifyValue"), "last subscriber MUST disable notifications")
}

func (s *NotificationTestSuite) TestEnableFailureReachesEverySubscriber() {
	// GOAL: Verify a failed enable terminates the shared session with ErrCharacteristicNotifyChangeFailed
	//
	// TEST SCENARIO: binding rejects enable → subscriber fails → no disable

	s.Binding.On("SetNotifyValue", s.battery, true).Run(func(mock.Arguments) {
		s.Binding.EmitNotifyState(s.battery, true, errors.New("cccd write failed"))
	}).Once()

	r, _ := record(s.Manager.SetNotificationAndMonitorUpdates(s.battery))

	s.ErrorIs(r.err, central.ErrCharacteristicNotifyChangeFailed)
	s.Equal(1, s.Binding.Calls("SetNotifyValue"), "unconfirmed enable MUST NOT be followed by a disable")
}

func (s *NotificationTestSuite) TestDisconnectTerminatesSessionWithoutDisable() {
	// GOAL: Verify a disconnection fails the session and skips disabling on a dead link
	//
	// TEST SCENARIO: session active → peripheral disconnects → ErrPeripheralDisconnected → one SetNotifyValue total

	r, _ := record(s.Manager.SetNotificationAndMonitorUpdates(s.battery))
	s.Require().Equal(1, s.Binding.Calls("SetNotifyValue"))

	s.Binding.EmitDisconnected(s.profile.Peripheral, nil)

	s.ErrorIs(r.err, central.ErrPeripheralDisconnected)
	s.Equal(1, s.Binding.Calls("SetNotifyValue"), "disable MUST NOT be issued to a disconnected peripheral")
}

func (s *NotificationTestSuite) TestSessionRestartsAfterRelease() {
	// GOAL: Verify a new subscriber after release starts a fresh session
	//
	// TEST SCENARIO: subscribe → cancel (disable) → subscribe again → enable again

	_, sub := record(s.Manager.SetNotificationAndMonitorUpdates(s.battery))
	sub.Cancel()

	r, sub := record(s.Manager.SetNotificationAndMonitorUpdates(s.battery))
	defer sub.Cancel()

	s.Equal(3, s.Binding.Calls("SetNotifyValue"), "enable, disable, enable MUST be issued")
	s.False(r.terminated())
}

func (s *NotificationTestSuite) TestNotificationManagerTracksSessions() {
	// GOAL: Verify sessions are registered per characteristic and removed on release
	//
	// TEST SCENARIO: observe twice → one session → release → none

	nm := central.NewNotificationManager(central.NewOperations(s.Binding, s.Logger), s.Logger)

	_, sub1 := record(nm.Observe(s.battery))
	_, sub2 := record(nm.Observe(s.battery))
	s.Equal(1, nm.Sessions())

	sub1.Cancel()
	sub2.Cancel()
	s.Equal(0, nm.Sessions(), "released session MUST be removed")
}
