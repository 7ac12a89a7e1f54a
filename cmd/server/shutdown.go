package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// stopStep is one component stopped during shutdown. A nil fn is skipped.
type stopStep struct {
	name string
	fn   func(context.Context) error
}

// stopAll runs steps in order. Each step gets an equal slice of budget, and
// the whole sequence never exceeds it. Failures are logged and joined.
func stopAll(L log.Logger, budget time.Duration, steps []stopStep) error {
	var active []stopStep
	for _, s := range steps {
		if s.fn != nil {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return nil
	}

	perStep := budget / time.Duration(len(active))
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	var errs []error
	for _, s := range active {
		sctx, scancel := context.WithTimeout(ctx, perStep)
		if err := s.fn(sctx); err != nil {
			L.Error(ctx, err, s.name+" shutdown")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
		scancel()
	}
	return errors.Join(errs...)
}

// waitDrain blocks for d or until force delivers, whichever is first.
// It reports whether the full period elapsed.
func waitDrain(d time.Duration, force <-chan os.Signal) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-force:
		return false
	}
}

// notifySystemd sends READY=1 when the process runs as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return errors.New("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // addr comes from systemd, unixgram dial has no context variant
	if err != nil {
		return fmt.Errorf("systemd notify: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write failed: %w", err)
	}
	return nil
}
