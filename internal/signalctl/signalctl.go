// Package signalctl converts SIGINT/SIGTERM into a graceful-shutdown event
// channel, the way cmd/warren wires os/signal.Notify for its daemon
// lifecycle, logged here with zerolog instead of warren's plain stderr
// prints since this runs unattended as a background process.
package signalctl

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// Reason identifies which signal triggered the shutdown.
type Reason string

const (
	ReasonSIGINT  Reason = "sigint"
	ReasonSIGTERM Reason = "sigterm"
)

// ExitCode maps a shutdown Reason to the process exit code used for a
// cancelled run.
func (r Reason) ExitCode() int {
	switch r {
	case ReasonSIGINT:
		return 130
	case ReasonSIGTERM:
		return 143
	default:
		return 130
	}
}

// Shutdown is delivered once when a termination signal arrives.
type Shutdown struct {
	Reason Reason
}

// Watch registers SIGINT/SIGTERM handlers and returns a channel that
// receives one Shutdown event and then closes when a signal arrives, or
// closes with no event if ctx is cancelled first. The returned stop
// function deregisters the handlers; callers should defer it.
func Watch(ctx context.Context, log zerolog.Logger) (<-chan Shutdown, func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	out := make(chan Shutdown, 1)

	go func() {
		select {
		case sig := <-sigCh:
			reason := ReasonSIGINT
			if sig == syscall.SIGTERM {
				reason = ReasonSIGTERM
			}
			log.Warn().Str("signal", string(reason)).Msg("received shutdown signal, draining in-flight work")
			out <- Shutdown{Reason: reason}
			close(out)
		case <-ctx.Done():
			close(out)
		}
	}()

	return out, func() { signal.Stop(sigCh) }
}
