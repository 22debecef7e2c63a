package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/rxble/internal/devicefactory"
	"github.com/srg/rxble/internal/ringchan"
	"github.com/srg/rxble/pkg/central"
	"github.com/srg/rxble/pkg/config"
	"github.com/srg/rxble/pkg/rx"
	"golang.org/x/term"
)

// runtimeFactory creates the central runtime; tests replace it.
var runtimeFactory = devicefactory.New

// session carries what a command needs once its arguments are validated.
type session struct {
	cfg     *config.Config
	logger  *logrus.Logger
	rt      *devicefactory.Runtime
	out     io.Writer
	palette *palette
}

// configure loads the configuration and applies the global flags on top of it.
func configure(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if b, _ := cmd.Flags().GetString("binding"); b != "" {
		cfg.Binding = b
	}
	level, _ := cmd.Flags().GetString("log-level")
	if level != "" {
		if _, err := logrus.ParseLevel(level); err != nil {
			return nil, nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
		}
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	if level == "" && path == "" {
		// quiet unless asked for
		logger.SetLevel(logrus.PanicLevel)
	}
	return cfg, logger, nil
}

// openSession configures logging and creates the central runtime.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, logger, err := configure(cmd)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	rt, err := runtimeFactory(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	out := cmd.OutOrStdout()
	return &session{cfg: cfg, logger: logger, rt: rt, out: out, palette: newPalette(out)}, nil
}

func (s *session) Close() {
	if err := s.rt.Close(); err != nil {
		s.logger.WithError(err).Debug("Failed to close runtime")
	}
}

// connect dials address within the configured connect timeout.
func (s *session) connect(ctx context.Context, address string) (central.Peripheral, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	return rx.First(ctx, s.rt.Connect(central.Peripheral{ID: address}, nil))
}

// disconnect cancels the connection, bounded by the connect timeout.
func (s *session) disconnect(p central.Peripheral) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()
	if _, err := rx.First(ctx, s.rt.CancelConnection(p)); err != nil {
		s.logger.WithError(err).WithField("peripheral", p.ID).Debug("Failed to disconnect")
	}
}

// characteristic connects to address and resolves the characteristic by UUIDs.
func (s *session) characteristic(ctx context.Context, address, service, char string) (central.Characteristic, error) {
	svcUUID, err := central.ParseUUID(service)
	if err != nil {
		return central.Characteristic{}, fmt.Errorf("invalid service UUID: %w", err)
	}
	charUUID, err := central.ParseUUID(char)
	if err != nil {
		return central.Characteristic{}, fmt.Errorf("invalid characteristic UUID: %w", err)
	}

	p, err := s.connect(ctx, address)
	if err != nil {
		return central.Characteristic{}, err
	}
	svc, err := rx.First(ctx, s.rt.ServiceWithUUID(p, svcUUID))
	if err != nil {
		return central.Characteristic{}, err
	}
	return rx.First(ctx, s.rt.CharacteristicWithUUID(svc, charUUID))
}

// reportDropped logs how many buffered results of stream were overwritten before the
// command read them.
func reportDropped(logger logrus.FieldLogger, stream string, m ringchan.Metrics) {
	if m.Overwritten == 0 {
		return
	}
	logger.WithFields(logrus.Fields{
		"stream":      stream,
		"written":     m.Written,
		"overwritten": m.Overwritten,
	}).Debug("Dropped buffered results")
}

// palette colors output written to a terminal and leaves pipes plain.
type palette struct {
	header *color.Color
	name   *color.Color
	good   *color.Color
	fair   *color.Color
	weak   *color.Color
	value  *color.Color
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newPalette(w io.Writer) *palette {
	p := &palette{
		header: color.New(color.Bold),
		name:   color.New(color.FgCyan),
		good:   color.New(color.FgGreen),
		fair:   color.New(color.FgYellow),
		weak:   color.New(color.FgRed),
		value:  color.New(color.FgMagenta),
	}
	if !isTerminal(w) {
		for _, c := range []*color.Color{p.header, p.name, p.good, p.fair, p.weak, p.value} {
			c.DisableColor()
		}
	}
	return p
}

// rssi renders a signal strength colored by quality.
func (p *palette) rssi(v int) string {
	s := fmt.Sprintf("%d dBm", v)
	switch {
	case v >= -60:
		return p.good.Sprint(s)
	case v >= -80:
		return p.fair.Sprint(s)
	default:
		return p.weak.Sprint(s)
	}
}
