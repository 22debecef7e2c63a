package main

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/rxble/internal/ringchan"
	"github.com/srg/rxble/pkg/central"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type scanFlags struct {
	services   []string
	duration   time.Duration
	format     string
	duplicates bool
}

func newScanCmd() *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE peripherals",
		Long: `Scan for Bluetooth Low Energy peripherals in the vicinity and print each one with
its name, address, signal strength and advertised services.

Concurrent scans share one hardware scan; --service keeps only peripherals
advertising every listed service.

Examples:
  rxble scan
  rxble scan --service 180f --duration 5s
  rxble scan --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, f)
		},
	}
	cmd.Flags().StringSliceVarP(&f.services, "service", "s", nil, "Only show peripherals advertising these service UUIDs")
	cmd.Flags().DurationVarP(&f.duration, "duration", "d", 0, "Scan duration (defaults to the configured scan timeout)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format (table, json, csv)")
	cmd.Flags().BoolVar(&f.duplicates, "duplicates", false, "Report repeated advertisements of a peripheral")
	return cmd
}

// scanEntry is the latest advertisement of one peripheral.
type scanEntry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	RSSI     int       `json:"rssi"`
	Services []string  `json:"services,omitempty"`
	TxPower  *int      `json:"tx_power,omitempty"`
	MfgData  string    `json:"manufacturer_data,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

func runScan(cmd *cobra.Command, f *scanFlags) error {
	var uuids []central.UUID
	if len(f.services) > 0 {
		var err error
		if uuids, err = central.ParseUUIDs(f.services...); err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	format := s.cfg.OutputFormat
	if f.format != "" {
		format = f.format
	}
	if !validScanFormat(format) {
		return fmt.Errorf("invalid format '%s': must be one of table, json, csv", format)
	}
	duration := s.cfg.ScanTimeout
	if f.duration > 0 {
		duration = f.duration
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), duration)
	defer cancel()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE peripherals", "Scanning", duration)
	progress.Start()

	found, err := collectScan(ctx, s, uuids, &central.ScanOptions{AllowDuplicates: f.duplicates})
	progress.Stop()
	if err != nil {
		return err
	}
	return printScan(s.out, s.palette, format, found)
}

func validScanFormat(format string) bool {
	switch format {
	case "table", "json", "csv":
		return true
	}
	return false
}

// collectScan gathers results until ctx is done. The deadline is the normal end of a
// scan, not an error.
func collectScan(ctx context.Context, s *session, uuids []central.UUID, opts *central.ScanOptions) (*orderedmap.OrderedMap[string, scanEntry], error) {
	results := ringchan.FromStream(s.rt.Scan(uuids, opts), s.cfg.NotifyBuffer)
	defer func() {
		results.Cancel()
		reportDropped(s.logger, "scan", results.Metrics())
	}()

	found := orderedmap.New[string, scanEntry]()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return found, nil
			}
			return found, ctx.Err()
		case r, ok := <-results.C():
			if !ok {
				return found, results.Err()
			}
			found.Set(r.Peripheral.ID, toScanEntry(r, found))
		}
	}
}

func toScanEntry(r central.ScannedPeripheral, seen *orderedmap.OrderedMap[string, scanEntry]) scanEntry {
	e := scanEntry{
		ID:       r.Peripheral.ID,
		Name:     r.Peripheral.Name,
		RSSI:     r.RSSI,
		TxPower:  r.Advertisement.TxPowerLevel,
		LastSeen: time.Now(),
	}
	if e.Name == "" {
		e.Name = r.Advertisement.LocalName
	}
	if prev, ok := seen.Get(e.ID); ok && e.Name == "" {
		e.Name = prev.Name
	}
	for _, u := range r.Advertisement.ServiceUUIDs {
		e.Services = append(e.Services, u.String())
	}
	if len(r.Advertisement.ManufacturerData) > 0 {
		e.MfgData = hex.EncodeToString(r.Advertisement.ManufacturerData)
	}
	return e
}

func printScan(w io.Writer, p *palette, format string, found *orderedmap.OrderedMap[string, scanEntry]) error {
	entries := make([]scanEntry, 0, found.Len())
	for pair := found.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, pair.Value)
	}
	// strongest first, discovery order on ties
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].RSSI > entries[j].RSSI })

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "csv":
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"name", "address", "rssi", "services"})
		for _, e := range entries {
			_ = cw.Write([]string{e.Name, e.ID, strconv.Itoa(e.RSSI), strings.Join(e.Services, " ")})
		}
		cw.Flush()
		return cw.Error()
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No peripherals discovered")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, p.header.Sprint("NAME\tADDRESS\tRSSI\tSERVICES"))
	for _, e := range entries {
		name := e.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(e.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.name.Sprint(name), e.ID, p.rssi(e.RSSI), services)
	}
	return tw.Flush()
}
