// Package framework runs the long-lived tasks of NWP hosts and devices.
package framework

import "context"

// Runnable is a task running until its context is done.
type Runnable interface {
	Run(context.Context) error
}

// Named is implemented by tasks carrying a name for logging.
type Named interface {
	Name() string
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}
