// Package devicefactory builds the central manager over the binding selected in the configuration.
package devicefactory

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/internal/binding/goble"
	"github.com/srg/rxble/internal/binding/tinygo"
	"github.com/srg/rxble/pkg/central"
	"github.com/srg/rxble/pkg/config"
	"github.com/srg/rxble/pkg/rx"
)

// Binding is an AdapterBinding that owns platform resources.
type Binding interface {
	central.AdapterBinding
	Close() error
}

// BindingFactory creates the named binding delivering its events on sched.
// This is a variable so that it can be overridden in tests.
var BindingFactory = func(cfg *config.Config, sched rx.Scheduler, logger *logrus.Logger) (Binding, error) {
	switch cfg.Binding {
	case config.BindingGoBLE, "":
		return goble.New(goble.Options{Scheduler: sched, Logger: logger, ConnectTimeout: cfg.ConnectTimeout}), nil
	case config.BindingTinyGo:
		return tinygo.New(tinygo.Options{Scheduler: sched, Logger: logger, ConnectTimeout: cfg.ConnectTimeout}), nil
	default:
		return nil, fmt.Errorf("unknown binding %q", cfg.Binding)
	}
}

// Runtime is a manager together with the binding and event loop it runs on.
type Runtime struct {
	*central.Manager

	binding Binding
	cancel  context.CancelFunc
}

// New creates the configured binding and a manager whose streams are delivered on a
// dedicated event loop. The loop stops when ctx is done or Close is called.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Runtime, error) {
	if logger == nil {
		logger = cfg.NewLogger()
	}

	ctx, cancel := context.WithCancel(ctx)
	loop := rx.NewLoop(ctx, "rxble-events")

	b, err := BindingFactory(cfg, loop, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"binding": cfg.Binding,
		"state":   b.State().String(),
	}).Debug("Central runtime created")

	return &Runtime{
		Manager: central.NewManager(b, loop, logger),
		binding: b,
		cancel:  cancel,
	}, nil
}

// Close releases the binding and stops the event loop.
func (r *Runtime) Close() error {
	defer r.cancel()
	return r.binding.Close()
}
