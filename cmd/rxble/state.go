package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/rxble/internal/ringchan"
	"github.com/srg/rxble/pkg/central"
)

func newStateCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the Bluetooth adapter state",
		Long: `Print the current adapter state, then every change until interrupted.

Examples:
  rxble state --once
  rxble state`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if once {
				printState(s, s.rt.State())
				return nil
			}

			states := ringchan.FromStream(s.rt.ObserveState(), s.cfg.NotifyBuffer)
			defer states.Cancel()
			for {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case st, ok := <-states.C():
					if !ok {
						return states.Err()
					}
					printState(s, st)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Print the current state and exit")
	return cmd
}

func printState(s *session, st central.AdapterState) {
	c := s.palette.weak
	if st == central.StatePoweredOn {
		c = s.palette.good
	}
	fmt.Fprintf(s.out, "%s %s\n", time.Now().Format("15:04:05"), c.Sprint(st.String()))
}
