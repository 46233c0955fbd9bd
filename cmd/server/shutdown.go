package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// stopStep is one component to stop during shutdown.
type stopStep struct {
	name string
	fn   func(context.Context) error
}

// awaitDrain holds the process for d after readiness starts failing so load
// balancers stop routing to it. A second signal cuts the wait short.
func awaitDrain(ctx context.Context, L log.Logger, d time.Duration) {
	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	L.Info(ctx, "draining", "drain_seconds", int(d/time.Second))
	select {
	case <-time.After(d):
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}

// stopInOrder runs steps sequentially. The total budget is split evenly so
// one stuck component cannot starve the ones after it. Failures are logged
// and the remaining steps still run.
func stopInOrder(ctx context.Context, L log.Logger, budget time.Duration, steps []stopStep) {
	if len(steps) == 0 {
		return
	}
	slice := budget / time.Duration(len(steps))
	total, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	for _, s := range steps {
		sctx, scancel := context.WithTimeout(total, slice)
		if err := s.fn(sctx); err != nil {
			L.Error(ctx, err, "shutdown step failed", "step", s.name)
		}
		scancel()
	}
}

// waitCtx runs wait and returns early with ctx's error if ctx is done first.
func waitCtx(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
