package main

import (
	"bytes"
	"context"

	"github.com/srg/rxble/internal/testutils"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

// CommandTestSuite runs commands against the real goble binding over a mocked device.
// Suites embedding it configure the peripheral before calling SetupTest.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

// ExecuteCommand runs the root command with args and returns stdout and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	defer cancel()

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	root := newRootCmd()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if stderr.Len() > 0 {
		s.Logger.Debugf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}
