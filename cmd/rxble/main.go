package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Commands are created per call so that flag
// state does not leak between executions.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rxble",
		Short: "Reactive Bluetooth Low Energy central CLI",
		Long: `Bluetooth Low Energy (BLE) central command-line tool built on reactive streams:

- Scan for nearby peripherals, optionally filtered by advertised services
- Watch the adapter power state
- Discover GATT services and characteristics
- Read, write and subscribe to characteristics
- Read the signal strength of a connected peripheral`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		SilenceErrors: true, // main() prints clean errors
	}

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	root.PersistentFlags().String("binding", "", "BLE stack (goble, tinygo)")

	root.AddCommand(
		newScanCmd(),
		newStateCmd(),
		newServicesCmd(),
		newReadCmd(),
		newWriteCmd(),
		newNotifyCmd(),
		newRSSICmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// Ctrl+C is a normal exit, not an error
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
