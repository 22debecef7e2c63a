package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/rxble/pkg/rx"
)

func newReadCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "read <address> <service> <characteristic>",
		Short: "Read a characteristic value",
		Long: `Connect to a peripheral and read one characteristic. The value is printed as hex.

Examples:
  # Read the Battery Level characteristic
  rxble read AA:BB:CC:DD:EE:FF 180f 2a19

  # Raw bytes, for piping
  rxble read AA:BB:CC:DD:EE:FF 180f 2a19 --raw > level.bin`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Reading %s from %s", args[2], args[0]), "Connecting", 0)
			progress.Start()
			defer progress.Stop()

			c, err := s.characteristic(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			defer s.disconnect(c.Peripheral())

			progress.SetPhase("Reading")
			read, err := rx.First(ctx, s.rt.ReadValue(c))
			progress.Stop()
			if err != nil {
				return err
			}

			if raw {
				_, err = s.out.Write(read.Value)
				return err
			}
			fmt.Fprintln(s.out, hex.EncodeToString(read.Value))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Write the raw bytes instead of hex")
	return cmd
}
