// Package groutine starts named goroutines and provides a serial execution loop
// built on top of them.
package groutine

import (
	"bytes"
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
)

const nameLabel = "goroutine_name"

// Go runs fn on a new goroutine carrying name as a pprof label, so profiles and
// goroutine dumps show which binding or loop owns it. A nil ctx means
// context.Background().
//
//	groutine.Go(ctx, "goble-scan", func(ctx context.Context) {
//	    // blocking work
//	})
func Go(ctx context.Context, name string, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go pprof.Do(ctx, pprof.Labels(nameLabel, name), fn)
}

// Name returns the name given to Go for the goroutine that received ctx.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := pprof.Label(ctx, nameLabel)
	return name
}

// currentID parses the runtime goroutine ID out of the stack header.
func currentID() uint64 {
	buf := make([]byte, 64)
	buf = bytes.TrimPrefix(buf[:runtime.Stack(buf, false)], []byte("goroutine "))
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}
	id, _ := strconv.ParseUint(string(buf[:end]), 10, 64)
	return id
}
