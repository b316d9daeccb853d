package nwp

import (
	"context"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/nwp/event"
	"github.com/robotalks/nwp.go/pkg/nwp/pool"
)

// spawnWorker receives messages arriving while no command is waiting and
// runs event handlers outside command context.
type spawnWorker struct {
	driver *Driver
}

// Run implements framework.Runnable.
func (w *spawnWorker) Run(ctx context.Context) error {
	d := w.driver
	hctx := pool.WithNoWait(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.spawnCh:
		case <-d.deferred.Ready():
		}
		if err := d.service(hctx); err != nil && err != ErrAborted && err != ctx.Err() {
			glog.Warningf("nwp: spawn: %v", err)
		}
	}
}

// service takes the global lock, receives the pending message if any and
// collects deferred events. Handlers run after the lock is released.
func (d *Driver) service(ctx context.Context) error {
	lock, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	if d.takeIRQ() {
		err = d.receive(nil)
	}
	var events []*event.Event
	for {
		ev, ok := d.deferred.Pop()
		if !ok {
			break
		}
		events = append(events, ev)
	}
	d.release(lock)
	for _, ev := range events {
		d.Handlers.Dispatch(ctx, ev)
	}
	return err
}

// serviceIRQ receives one pending message without running handlers.
func (d *Driver) serviceIRQ(ctx context.Context) error {
	lock, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer d.release(lock)
	if d.takeIRQ() {
		return d.receive(nil)
	}
	return nil
}
