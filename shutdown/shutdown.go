// Package shutdown turns termination signals into context cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

func Notify(ch chan os.Signal) {
	signal.Notify(ch, signals...)
}

// Context returns a copy of parent that is cancelled on the first
// termination signal.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}
