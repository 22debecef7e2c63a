package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/rxble/pkg/rx"
)

func newRSSICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rssi <address>",
		Short: "Read the signal strength of a peripheral",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			p, err := s.connect(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.disconnect(p)

			reading, err := rx.First(ctx, s.rt.ReadRSSI(p))
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "%s %s\n", p, s.palette.rssi(reading.RSSI))
			return nil
		},
	}
}
