package nwp

import (
	"github.com/golang/glog"
)

// FatalObserver is notified once when the driver enters restart required.
type FatalObserver interface {
	HandleFatal(*FatalError)
}

// HandleFatalFunc is the func form of FatalObserver.
type HandleFatalFunc func(*FatalError)

// HandleFatal implements FatalObserver.
func (f HandleFatalFunc) HandleFatal(err *FatalError) {
	f(err)
}

// OnFatal registers a fatal error observer.
func (d *Driver) OnFatal(observer FatalObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, observer)
}

// Fatal returns the latched fatal error, nil while running normally.
func (d *Driver) Fatal() *FatalError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatalErr
}

// Abort forces the driver into restart required.
func (d *Driver) Abort(reason uint32) {
	d.fatal(FatalDriverAbort, 0, reason)
}

// fatal latches the restart required state, aborts every waiter and
// notifies observers synchronously. Only the first trigger is effective.
func (d *Driver) fatal(code FatalCode, param1, param2 uint32) *FatalError {
	d.mu.Lock()
	if d.fatalErr != nil {
		ferr := d.fatalErr
		d.mu.Unlock()
		return ferr
	}
	ferr := &FatalError{Code: code, Param1: param1, Param2: param2}
	d.fatalErr = ferr
	d.status |= StatusRestartRequired
	close(d.fatalCh)
	observers := append([]FatalObserver(nil), d.observers...)
	d.mu.Unlock()

	glog.Errorf("nwp: %v", ferr)
	d.transport.MaskInterrupt()
	d.pool.ReleaseAll()
	d.flow.Abort()
	for _, o := range observers {
		o.HandleFatal(ferr)
	}
	return ferr
}
