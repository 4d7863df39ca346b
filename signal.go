package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the status for a second interrupt, as shells report it.
const exitInterrupted = 130

// shutdownContext derives a context that the first SIGINT or SIGTERM
// cancels. Copies and deletes stop between files and clean up their temp
// downloads. A second signal exits at once.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go watchSignals(parent, ctx, cancel, signals, logger)

	return ctx
}

func watchSignals(
	parent, ctx context.Context,
	cancel context.CancelFunc,
	signals chan os.Signal,
	logger *slog.Logger,
) {
	defer signal.Stop(signals)

	// Until the first signal the command may finish on its own; after it,
	// only the parent ending releases the watcher.
	done := ctx.Done()

	for interrupted := false; ; interrupted = true {
		select {
		case <-done:
			return
		case sig := <-signals:
			if interrupted {
				logger.Warn("interrupted again, exiting without cleanup", slog.String("signal", sig.String()))
				os.Exit(exitInterrupted)
			}

			logger.Info("interrupted, stopping after the current file", slog.String("signal", sig.String()))
			cancel()

			done = parent.Done()
		}
	}
}
