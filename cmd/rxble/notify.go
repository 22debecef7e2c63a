package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/rxble/internal/ringchan"
	"github.com/srg/rxble/pkg/central"
)

func newNotifyCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "notify <address> <service> <characteristic>",
		Short: "Subscribe to characteristic notifications",
		Long: `Connect to a peripheral, enable notifications of one characteristic and print
every value until interrupted or --count values were received. Notifications are
disabled again on exit.

Examples:
  rxble notify AA:BB:CC:DD:EE:FF 180d 2a37
  rxble notify AA:BB:CC:DD:EE:FF 180f 2a19 --count 3`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			notifications := central.NewNotificationManager(s.rt.Operations, s.logger)
			values := ringchan.FromStream(notifications.Observe(c), s.cfg.NotifyBuffer)
			defer func() {
				values.Cancel()
				reportDropped(s.logger, "notify", values.Metrics())
			}()

			received := 0
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case v, ok := <-values.C():
					if !ok {
						if err := values.Err(); errors.Is(err, central.ErrPeripheralDisconnected) {
							return fmt.Errorf("%w: %w", ErrConnectionLost, err)
						}
						return values.Err()
					}
					fmt.Fprintf(s.out, "%s %s %s\n", time.Now().Format("15:04:05.000"), c.UUID, s.palette.value.Sprint(hex.EncodeToString(v.Value)))
					received++
					if count > 0 && received >= count {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many notifications (0 for unlimited)")
	return cmd
}
