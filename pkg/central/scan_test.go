package central_test

import (
	"testing"

	"github.com/srg/rxble/internal/testutils"
	"github.com/srg/rxble/pkg/central"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ScanTestSuite struct {
	testutils.CentralSuite
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}

func (s *ScanTestSuite) TestConcurrentAcceptAllScansShareOneHardwareScan() {
	// GOAL: Verify two accept-all scans share one hardware scan that stops only after both leave
	//
	// TEST SCENARIO: scan(nil) twice → one start → discovery reaches both → cancel both → one stop

	first, sub1 := record(s.Manager.Scan(nil, nil))
	second, sub2 := record(s.Manager.Scan(nil, nil))

	s.Equal(1, s.Binding.Calls("ScanForPeripherals"), "hardware scan MUST be started exactly once")
	s.Equal(1, s.Manager.ActiveOperations(), "both requests MUST be bound to one scan session")

	sp := testutils.CreateMockAdvertisement("Sensor", "11:22:33:44:55:66", -40).BuildScanned()
	s.Binding.Discover(sp)

	s.Require().Len(first.values, 1, "first scanner MUST receive the discovery")
	s.Require().Len(second.values, 1, "second scanner MUST receive the discovery")
	s.True(first.values[0].Peripheral.Equal(sp.Peripheral), "discovered peripheral MUST match")
	s.Equal(-40, second.values[0].RSSI, "RSSI MUST be relayed")

	sub1.Cancel()
	s.Equal(0, s.Binding.Calls("StopScan"), "hardware scan MUST keep running while a subscriber remains")

	sub2.Cancel()
	s.Equal(1, s.Binding.Calls("StopScan"), "hardware scan MUST be stopped exactly once")
	s.Equal(0, s.Manager.ActiveOperations(), "released session MUST leave the registry")
}

func (s *ScanTestSuite) TestNarrowerRequestBindsToBroaderSessionWithClientFilter() {
	// GOAL: Verify a request whose UUIDs are a subset of a running scan reuses it and filters results
	//
	// TEST SCENARIO: scan({180D,180F}) then scan({180F}) → one start → only 180F advertisers reach the second

	uuids, err := central.ParseUUIDs("180D", "180F")
	s.Require().NoError(err)

	s.Binding.On("ScanForPeripherals", uuids, mock.Anything).Once()

	broad, sub1 := record(s.Manager.Scan(uuids, nil))
	narrow, sub2 := record(s.Manager.Scan([]central.UUID{"180f"}, nil))
	defer sub1.Cancel()
	defer sub2.Cancel()

	s.Equal(1, s.Binding.Calls("ScanForPeripherals"), "narrower request MUST NOT start another hardware scan")

	s.Binding.Discover(testutils.NewAdvertisementBuilder().
		WithAddress("AA:AA:AA:AA:AA:AA").WithServices("180D").BuildScanned())
	s.Binding.Discover(testutils.NewAdvertisementBuilder().
		WithAddress("BB:BB:BB:BB:BB:BB").WithServices("180D", "180F").BuildScanned())

	s.Len(broad.values, 2, "broad scanner MUST receive every discovery of its session")
	s.Require().Len(narrow.values, 1, "narrow scanner MUST only receive peripherals advertising 180F")
	s.Equal("BB:BB:BB:BB:BB:BB", narrow.values[0].Peripheral.ID)
}

func (s *ScanTestSuite) TestEmptyFilterBindsToRunningFilteredSession() {
	// GOAL: Verify an empty non-nil filter requires no services and joins a running filtered session
	//
	// TEST SCENARIO: scan({180D}) then scan({}) → one start → 180D discovery reaches both

	s.Binding.On("ScanForPeripherals", []central.UUID{"180d"}, mock.Anything).Once()

	heart, sub1 := record(s.Manager.Scan([]central.UUID{"180d"}, nil))
	empty, sub2 := record(s.Manager.Scan([]central.UUID{}, nil))
	defer sub1.Cancel()
	defer sub2.Cancel()

	s.Equal(1, s.Binding.Calls("ScanForPeripherals"), "empty filter MUST reuse the running hardware scan")
	s.Equal(1, s.Manager.ActiveOperations(), "empty filter MUST NOT register its own session")

	s.Binding.Discover(testutils.NewAdvertisementBuilder().
		WithAddress("AA:AA:AA:AA:AA:AA").WithServices("180D").BuildScanned())

	s.Len(heart.values, 1)
	s.Require().Len(empty.values, 1, "empty filter MUST receive the session's discoveries")
	s.Equal("AA:AA:AA:AA:AA:AA", empty.values[0].Peripheral.ID)
}

func (s *ScanTestSuite) TestIncompatibleRequestsRunSequentially() {
	// GOAL: Verify incompatible filters never share a session and their hardware scans never overlap
	//
	// TEST SCENARIO: scan({180D}) then scan({180F}) → second waits → first released → second starts

	s.Binding.On("ScanForPeripherals", []central.UUID{"180d"}, mock.Anything).Once()
	s.Binding.On("ScanForPeripherals", []central.UUID{"180f"}, mock.Anything).Once()
	s.Binding.On("StopScan").Twice()

	_, sub1 := record(s.Manager.Scan([]central.UUID{"180d"}, nil))
	second, sub2 := record(s.Manager.Scan([]central.UUID{"180f"}, nil))

	s.Equal(1, s.Binding.Calls("ScanForPeripherals"), "second scan MUST wait for the first session")
	s.Equal(2, s.Manager.ActiveOperations(), "incompatible request MUST register its own session")

	s.Binding.Discover(testutils.NewAdvertisementBuilder().
		WithAddress("AA:AA:AA:AA:AA:AA").WithServices("180F").BuildScanned())
	s.Empty(second.values, "waiting session MUST NOT receive discoveries")

	sub1.Cancel()
	s.Equal(1, s.Binding.Calls("StopScan"), "first hardware scan MUST stop before the next starts")
	s.Equal(2, s.Binding.Calls("ScanForPeripherals"), "second hardware scan MUST start once the first is released")

	s.Binding.Discover(testutils.NewAdvertisementBuilder().
		WithAddress("AA:AA:AA:AA:AA:AA").WithServices("180F").BuildScanned())
	s.Len(second.values, 1, "started session MUST receive discoveries")

	sub2.Cancel()
	s.Equal(0, s.Manager.ActiveOperations())
}

func (s *ScanTestSuite) TestBroaderRequestDoesNotReuseNarrowerSession() {
	// GOAL: Verify an accept-all request never binds to a filtered session
	//
	// TEST SCENARIO: scan({180D}) then scan(nil) → two sessions → second queued

	_, sub1 := record(s.Manager.Scan([]central.UUID{"180d"}, nil))
	defer sub1.Cancel()
	_, sub2 := record(s.Manager.Scan(nil, nil))
	defer sub2.Cancel()

	s.Equal(2, s.Manager.ActiveOperations(), "accept-all request MUST NOT bind to a filtered session")
	s.Equal(1, s.Binding.Calls("ScanForPeripherals"), "only one hardware scan MUST run at a time")
}

func (s *ScanTestSuite) TestSubscriberArrivingAfterReleaseStartsNewSession() {
	// GOAL: Verify a released session is not reused and a new scan starts a fresh hardware scan
	//
	// TEST SCENARIO: scan → cancel → scan again → two starts, two stops

	_, sub := record(s.Manager.Scan(nil, nil))
	sub.Cancel()

	_, sub = record(s.Manager.Scan(nil, nil))
	s.Equal(2, s.Binding.Calls("ScanForPeripherals"), "new subscription MUST start a new hardware scan")
	s.Equal(1, s.Manager.ActiveOperations())

	sub.Cancel()
	s.Equal(2, s.Binding.Calls("StopScan"))
}

func (s *ScanTestSuite) TestScanFailsWithoutTouchingHardwareWhenAdapterIsOff() {
	// GOAL: Verify the state gate fails a scan before the hardware scan is requested
	//
	// TEST SCENARIO: adapter powered off → scan → ErrPoweredOff → no start, empty registry

	s.Binding.SetState(central.StatePoweredOff)

	r, _ := record(s.Manager.Scan(nil, nil))

	s.ErrorIs(r.err, central.ErrPoweredOff, "scan MUST fail with the adapter-state error")
	s.Equal(0, s.Binding.Calls("ScanForPeripherals"), "hardware scan MUST NOT be started")
	s.Equal(0, s.Manager.ActiveOperations(), "failed request MUST NOT leave a session behind")
}

func (s *ScanTestSuite) TestScanFailsAndStopsWhenAdapterTurnsOff() {
	// GOAL: Verify losing the adapter during a scan terminates it and stops the hardware scan
	//
	// TEST SCENARIO: scan running → adapter powered off → ErrPoweredOff → stop scan

	r, _ := record(s.Manager.Scan(nil, nil))
	s.Require().Equal(1, s.Binding.Calls("ScanForPeripherals"))

	s.Binding.SetState(central.StatePoweredOff)

	s.ErrorIs(r.err, central.ErrPoweredOff, "running scan MUST fail when the adapter turns off")
	s.Equal(1, s.Binding.Calls("StopScan"), "hardware scan MUST be stopped")
	s.Equal(0, s.Manager.ActiveOperations())
}

func (s *ScanTestSuite) TestNonErrorStateChangeKeepsScanRunning() {
	// GOAL: Verify a repeated powered-on notification does not disturb a running scan
	//
	// TEST SCENARIO: scan running → StateChanged(poweredOn) → still running

	r, sub := record(s.Manager.Scan(nil, nil))
	defer sub.Cancel()

	s.Binding.SetState(central.StatePoweredOn)

	s.False(r.terminated(), "scan MUST keep running")
	s.Equal(0, s.Binding.Calls("StopScan"))
}
