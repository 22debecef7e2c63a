package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/internal/ringchan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
		err  string
	}{
		{"0x10", []byte{0x10}, ""},
		{"DE AD be:ef", []byte{0xde, 0xad, 0xbe, 0xef}, ""},
		{"", nil, "no data to write"},
		{"abc", nil, "invalid hex data"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseHex(tt.in)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProgressPrinterIsSilentWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, "Scanning", "Scanning", time.Second)

	p.Start()
	p.SetPhase("Processing")
	time.Sleep(2 * progressUpdateInterval)
	p.Stop()
	p.Stop()

	assert.Empty(t, buf.String(), "progress MUST NOT be drawn into pipes")
}

func TestProgressPrinterStopBeforeStart(t *testing.T) {
	p := NewProgressPrinter(&bytes.Buffer{}, "Reading", "Connecting", 0)

	assert.NotPanics(t, p.Stop)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"scan", "state", "services", "read", "write", "notify", "rssi"})
	for _, flag := range []string{"log-level", "config", "binding"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "--%s MUST be a global flag", flag)
	}
}

func TestReportDroppedLogsOverwrittenResults(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)

	rc := ringchan.New[int](2)
	for i := 0; i < 5; i++ {
		rc.Send(i)
	}
	reportDropped(logger, "scan", rc.Metrics())

	out := buf.String()
	assert.Contains(t, out, `"msg":"Dropped buffered results"`)
	assert.Contains(t, out, `"stream":"scan"`)
	assert.Contains(t, out, `"overwritten":3`)
	assert.Contains(t, out, `"written":5`)
	assert.Contains(t, out, `"level":"debug"`)

	buf.Reset()
	reportDropped(logger, "notify", ringchan.Metrics{Written: 4})
	assert.Empty(t, buf.String(), "nothing MUST be logged when no result was dropped")
}
