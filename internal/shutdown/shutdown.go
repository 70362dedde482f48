// Package shutdown provides a context that is cancelled on SIGINT or SIGTERM.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-scimm/scimm/internal/logging"
)

// New returns a context cancelled by the first interrupt or terminate
// signal, and a function that releases the signal handler.
func New() (context.Context, func()) {
	return WithContext(context.Background())
}

// WithContext is New on top of a parent context.
func WithContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-signalCh:
			logging.FromContext(ctx).Infof("received signal %v, shutting down", sig)
		case <-ctx.Done():
		}
		signal.Stop(signalCh)
		cancel()
	}()

	return ctx, cancel
}
