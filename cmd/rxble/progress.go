package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter keeps a status line with the current phase and elapsed or remaining
// seconds. It only draws on terminals; on other writers every method is a no-op.
//
//	p := NewProgressPrinter(out, "Reading 2a19", "Connecting", 0)
//	p.Start()
//	defer p.Stop()
//	p.SetPhase("Reading")
type ProgressPrinter struct {
	w        io.Writer
	enabled  bool
	prefix   string
	phase    atomic.Value // string
	duration time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a printer for w. A positive duration counts down,
// otherwise elapsed time is shown.
func NewProgressPrinter(w io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := &ProgressPrinter{
		w:        w,
		enabled:  isTerminal(w),
		prefix:   prefix,
		duration: duration,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// SetPhase changes the phase shown on the next tick.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Start draws the status line until Stop.
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		if !p.enabled {
			close(p.done)
			return
		}
		started := time.Now()
		p.draw(0)
		go func() {
			defer close(p.done)
			ticker := time.NewTicker(progressUpdateInterval)
			defer ticker.Stop()
			for {
				select {
				case <-p.stop:
					return
				case <-ticker.C:
					p.draw(time.Since(started))
				}
			}
		}()
	})
}

func (p *ProgressPrinter) draw(elapsed time.Duration) {
	seconds := int(elapsed.Seconds())
	if p.duration > 0 {
		// round to the nearest second, never below zero
		seconds = int((p.duration - elapsed).Seconds() + 0.5)
		if seconds < 0 {
			seconds = 0
		}
	}
	phase := p.phase.Load().(string)
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Stop clears the status line. Safe to call more than once, and before Start.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		p.startOnce.Do(func() { close(p.done) })
		close(p.stop)
		<-p.done
		if p.enabled {
			fmt.Fprint(p.w, clearLineSequence)
		}
	})
}
