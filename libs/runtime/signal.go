package runtime

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var exit = os.Exit

// SignalContext is cancelled on the first SIGINT or SIGTERM so servers can
// drain. A second signal exits immediately with status 1.
func SignalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go watchSignals(ch, cancel, logger)
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}

func watchSignals(ch <-chan os.Signal, cancel context.CancelFunc, logger *slog.Logger) {
	sig, ok := <-ch
	if !ok {
		return
	}
	logger.Info("shutdown requested", "signal", sig.String())
	cancel()
	if sig, ok = <-ch; ok {
		logger.Warn("second signal, exiting now", "signal", sig.String())
		exit(1)
	}
}
