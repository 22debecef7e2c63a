package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/rxble/pkg/central"
	"github.com/srg/rxble/pkg/rx"
)

func newWriteCmd() *cobra.Command {
	var noResponse bool
	cmd := &cobra.Command{
		Use:   "write <address> <service> <characteristic> <hex>",
		Short: "Write a characteristic value",
		Long: `Connect to a peripheral and write hex-encoded data to one characteristic.

A write with response completes once the peripheral confirms it; a write without
response completes as soon as it is issued.

Examples:
  rxble write AA:BB:CC:DD:EE:FF 6e400001-b5a3-f393-e0a9-e50e24dcca9e 6e400002-b5a3-f393-e0a9-e50e24dcca9e 68656c6c6f
  rxble write AA:BB:CC:DD:EE:FF 180f 2a19 0x32 --without-response`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseHex(args[3])
			if err != nil {
				return err
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			c, err := s.characteristic(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			defer s.disconnect(c.Peripheral())

			t := central.WriteWithResponse
			if noResponse {
				t = central.WriteWithoutResponse
			}
			if _, err := rx.First(ctx, s.rt.WriteValue(data, c, t)); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "wrote %d bytes to %s (%s)\n", len(data), c.UUID, t)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noResponse, "without-response", false, "Write without waiting for a confirmation")
	return cmd
}

// parseHex accepts an optional 0x prefix and ignores spaces and colons.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	if s == "" {
		return nil, fmt.Errorf("no data to write")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}
