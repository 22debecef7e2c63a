package main

import (
	"strings"
	"testing"
	"time"

	"github.com/srg/rxble/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type GATTCommandTestSuite struct {
	CommandTestSuite
}

func TestGATTCommandTestSuite(t *testing.T) {
	suite.Run(t, new(GATTCommandTestSuite))
}

func (s *GATTCommandTestSuite) SetupTest() {
	s.WithPeripheral().
		WithAddress(testAddress).
		WithName("Battery").
		WithService("180F").
		WithCharacteristic("2A19", "read,write,notify", []byte{50})

	s.CommandTestSuite.SetupTest() // call parent last to apply configuration
}

func (s *GATTCommandTestSuite) TestServicesPrintsTree() {
	out, err := s.ExecuteCommand("services", testAddress)

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
AA:BB:CC:DD:EE:FF
└─ service 180f Battery Service
   └─ 2a19 [read,write,notify] Battery Level
`)
	s.Peripheral.Client.AssertCalled(s.T(), "CancelConnection")
}

func (s *GATTCommandTestSuite) TestReadPrintsHex() {
	// GOAL: Verify read connects, resolves the characteristic and prints its value as hex
	//
	// TEST SCENARIO: read 180f 2a19 → "32" → disconnected afterwards

	out, err := s.ExecuteCommand("read", testAddress, "180f", "2a19")

	s.Require().NoError(err)
	s.Equal("32\n", out)
	s.Peripheral.Client.AssertCalled(s.T(), "CancelConnection")
}

func (s *GATTCommandTestSuite) TestReadRaw() {
	out, err := s.ExecuteCommand("read", testAddress, "180F", "2A19", "--raw")

	s.Require().NoError(err)
	s.Equal(string([]byte{50}), out)
}

func (s *GATTCommandTestSuite) TestReadUnknownCharacteristic() {
	_, err := s.ExecuteCommand("read", testAddress, "180f", "2a37")

	s.Require().Error(err)
	s.Equal(`characteristic "2a37" not found in service "180f"`, FormatUserError(err))
}

func (s *GATTCommandTestSuite) TestReadRejectsInvalidUUID() {
	_, err := s.ExecuteCommand("read", testAddress, "180f", "nothex")

	s.Require().Error(err)
	s.Contains(err.Error(), "invalid characteristic UUID")
}

func (s *GATTCommandTestSuite) TestWriteWithResponse() {
	out, err := s.ExecuteCommand("write", testAddress, "180f", "2a19", "0x10")

	s.Require().NoError(err)
	s.Equal("wrote 1 bytes to 2a19 (with-response)\n", out)
	native := s.Peripheral.Services[0].Characteristics[0]
	s.Peripheral.Client.AssertCalled(s.T(), "WriteCharacteristic", native, []byte{0x10}, false)
}

func (s *GATTCommandTestSuite) TestWriteWithoutResponse() {
	out, err := s.ExecuteCommand("write", testAddress, "180f", "2a19", "01:02", "--without-response")

	s.Require().NoError(err)
	s.Equal("wrote 2 bytes to 2a19 (without-response)\n", out)
}

func (s *GATTCommandTestSuite) TestWriteRejectsBadHex() {
	_, err := s.ExecuteCommand("write", testAddress, "180f", "2a19", "zz")

	s.Require().Error(err)
	s.Contains(err.Error(), "invalid hex data")
	s.Peripheral.Device.AssertNotCalled(s.T(), "Dial")
}

func (s *GATTCommandTestSuite) TestNotifyPrintsValues() {
	// GOAL: Verify notify prints received values and exits after --count
	//
	// TEST SCENARIO: subscribe → peripheral notifies → two lines printed → command returns

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.ExecuteCommand("notify", testAddress, "180f", "2a19", "--count", "2")
		done <- result{out, err}
	}()

	s.Eventually(func() bool { return s.Peripheral.Subscribed("2A19") }, s.TestTimeout, 10*time.Millisecond,
		"notifications MUST be enabled")

	// keep notifying until the command has printed enough values
	for {
		select {
		case r := <-done:
			s.Require().NoError(r.err)
			lines := strings.Split(strings.TrimSpace(r.out), "\n")
			s.Len(lines, 2)
			for _, line := range lines {
				s.True(strings.HasSuffix(line, "2a19 2a"), "line %q MUST carry the notified value", line)
			}
			return
		case <-time.After(20 * time.Millisecond):
			s.Peripheral.Notify("2A19", []byte{0x2a})
		}
	}
}

func (s *GATTCommandTestSuite) TestNotifyReportsConnectionLoss() {
	done := make(chan error, 1)
	go func() {
		_, err := s.ExecuteCommand("notify", testAddress, "180f", "2a19")
		done <- err
	}()

	s.Eventually(func() bool { return s.Peripheral.Subscribed("2A19") }, s.TestTimeout, 10*time.Millisecond)
	s.Peripheral.Disconnect()

	select {
	case err := <-done:
		s.ErrorIs(err, ErrConnectionLost, "link loss MUST end the notify command with an error")
	case <-time.After(s.TestTimeout):
		s.FailNow("notify did not return after the link was lost")
	}
}

func (s *GATTCommandTestSuite) TestRSSI() {
	out, err := s.ExecuteCommand("rssi", testAddress)

	s.Require().NoError(err)
	s.Contains(out, "-50 dBm")
}

func (s *GATTCommandTestSuite) TestStateOnce() {
	out, err := s.ExecuteCommand("state", "--once")

	s.Require().NoError(err)
	s.Contains(out, "powered on")
}

type ServicesTreeTestSuite struct {
	CommandTestSuite
}

func TestServicesTreeTestSuite(t *testing.T) {
	suite.Run(t, new(ServicesTreeTestSuite))
}

func (s *ServicesTreeTestSuite) SetupTest() {
	s.WithPeripheral().
		WithAddress(testAddress).
		WithName("Sensor").
		WithService("180F").
		WithCharacteristic("2A19", "read,notify", []byte{50}).
		WithService("180A").
		WithCharacteristic("2A29", "read", []byte("ACME")).
		WithCharacteristic("2A24", "read", []byte("S1"))

	s.CommandTestSuite.SetupTest() // call parent last to apply configuration
}

func (s *ServicesTreeTestSuite) TestBranchesDependOnPosition() {
	// GOAL: Verify inner items use a tee, last items use a corner and nesting keeps the trunk open
	//
	// TEST SCENARIO: two services → first ├─ with │ continuation → last └─ with blank continuation

	out, err := s.ExecuteCommand("services", testAddress)

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
AA:BB:CC:DD:EE:FF
├─ service 180f Battery Service
│  └─ 2a19 [read,notify] Battery Level
└─ service 180a Device Information
   ├─ 2a29 [read] Manufacturer Name String
   └─ 2a24 [read] Model Number String
`)
}

func (s *ServicesTreeTestSuite) TestDescriptorsAreListedUnderTheirCharacteristic() {
	// GOAL: Verify --descriptors discovers descriptors and nests them below each characteristic
	//
	// TEST SCENARIO: services --descriptors → client configuration descriptor under 2a19 only

	out, err := s.ExecuteCommand("services", testAddress, "--descriptors")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T()).Assert(out, `
AA:BB:CC:DD:EE:FF
├─ service 180f Battery Service
│  └─ 2a19 [read,notify] Battery Level
│     └─ 2902 Client Characteristic Configuration
└─ service 180a Device Information
   ├─ 2a29 [read] Manufacturer Name String
   └─ 2a24 [read] Model Number String
`)
}
