package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/rxble/internal/bledb"
	"github.com/srg/rxble/pkg/rx"
)

func newServicesCmd() *cobra.Command {
	var withDescriptors bool
	cmd := &cobra.Command{
		Use:   "services <address>",
		Short: "List the GATT services and characteristics of a peripheral",
		Long: `Connect to a peripheral, discover its services and their characteristics and
print them as a tree.

Examples:
  rxble services AA:BB:CC:DD:EE:FF
  rxble services AA:BB:CC:DD:EE:FF --descriptors`,
		Args: cobra.ExactArgs(1),
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

			services, err := rx.First(ctx, s.rt.DiscoverServices(p, nil))
			if err != nil {
				return err
			}

			fmt.Fprintln(s.out, s.palette.header.Sprint(p.String()))
			for i, svc := range services {
				chars, err := rx.First(ctx, s.rt.DiscoverCharacteristics(svc, nil))
				if err != nil {
					return err
				}
				glyph, indent := branch(i, len(services), "")
				fmt.Fprintf(s.out, "%s service %s%s\n", glyph, s.palette.name.Sprint(svc.UUID), describe(bledb.LookupService(svc.UUID.String())))
				for j, c := range chars {
					glyph, nested := branch(j, len(chars), indent)
					fmt.Fprintf(s.out, "%s %s [%s]%s\n", glyph, s.palette.value.Sprint(c.UUID), c.Properties,
						describe(bledb.LookupCharacteristic(c.UUID.String())))
					if !withDescriptors {
						continue
					}
					descriptors, err := rx.First(ctx, s.rt.DiscoverDescriptors(c))
					if err != nil {
						return err
					}
					for k, d := range descriptors {
						glyph, _ := branch(k, len(descriptors), nested)
						fmt.Fprintf(s.out, "%s %s%s\n", glyph, d.UUID, describe(bledb.LookupDescriptor(d.UUID.String())))
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withDescriptors, "descriptors", false, "Also discover and list characteristic descriptors")
	return cmd
}

// branch returns the tree glyph of item i of n under prefix, and the prefix of its children.
func branch(i, n int, prefix string) (glyph, children string) {
	if i == n-1 {
		return prefix + "└─", prefix + "   "
	}
	return prefix + "├─", prefix + "│  "
}

// describe renders a known name as a suffix.
func describe(name string) string {
	if name == "" {
		return ""
	}
	return " " + name
}
