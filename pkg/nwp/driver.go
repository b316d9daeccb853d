package nwp

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/framework"
	"github.com/robotalks/nwp.go/pkg/nwp/event"
	"github.com/robotalks/nwp.go/pkg/nwp/flow"
	"github.com/robotalks/nwp.go/pkg/nwp/pool"
	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
	"github.com/robotalks/nwp.go/pkg/nwp/wire"
)

// Status is the driver status bitmask.
type Status uint32

// Status bits.
const (
	StatusStarted Status = 1 << iota
	StatusStopping
	StatusProvisioning
	StatusRestartRequired
)

// Has tells whether all bits are set.
func (s Status) Has(bits Status) bool {
	return s&bits == bits
}

// String implements fmt.Stringer.
func (s Status) String() string {
	var names []string
	for bit, name := range []string{"started", "stopping", "provisioning", "restart-required"} {
		if s&(1<<uint(bit)) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "idle"
	}
	return strings.Join(names, ",")
}

// Driver is the host side control block of one NWP.
type Driver struct {
	// Handlers receive async events outside command context. Set before
	// Start.
	Handlers event.Handlers

	config    Config
	transport Transport
	codec     *wire.Codec
	pool      *pool.Pool
	flow      *flow.Control
	deferred  *event.Queue

	cmdSync chan struct{}
	spawnCh chan struct{}
	writeMu sync.Mutex

	mu         sync.Mutex
	lockCh     chan struct{}
	status     Status
	devStatus  uint8
	irqPending bool
	cmdWaiting bool
	fatalErr   *FatalError
	fatalCh    chan struct{}
	initCh     chan struct{}
	observers  []FatalObserver
	cancel     context.CancelFunc
	runner     *framework.Runner
}

// New creates a Driver on the transport.
func New(t Transport, config Config) *Driver {
	codec := wire.NewCodec(t, wire.RoleHost)
	codec.LongSync = config.LongSync
	codec.SyncTimeout = config.SyncTimeout
	return &Driver{
		config:    config,
		transport: t,
		codec:     codec,
		pool:      pool.New(config.PoolSize),
		flow:      flow.New(config.ReservedCredits),
		deferred:  event.NewQueue(config.DeferredQueueSize),
		cmdSync:   make(chan struct{}, 1),
		spawnCh:   make(chan struct{}, 1),
		lockCh:    make(chan struct{}, 1),
		fatalCh:   make(chan struct{}),
	}
}

// Config returns the configuration.
func (d *Driver) Config() Config {
	return d.config
}

// Status returns the current status bits.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// DevStatus returns the device status bits from the last response header.
func (d *Driver) DevStatus() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devStatus
}

// Credits returns the current and last reported flow-control credits.
func (d *Driver) Credits() (current, reported uint16) {
	return d.flow.Credits()
}

// PoolStats counts free, active and pending correlation slots.
func (d *Driver) PoolStats() (free, active, pending int) {
	return d.pool.Stats()
}

// Start enables the interrupt, starts the deferred worker and waits until
// the device reports init complete.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.fatalErr != nil {
		d.mu.Unlock()
		return ErrAborted
	}
	if d.status.Has(StatusStarted) {
		d.mu.Unlock()
		return nil
	}
	if d.runner != nil {
		d.mu.Unlock()
		return errors.New("start in progress")
	}
	d.resetLocked()
	initCh, fatalCh := d.initCh, d.fatalCh
	wctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.runner = framework.NewRunnerWith(wctx).Go(framework.NamedRun("nwp-spawn", &spawnWorker{driver: d}))
	d.mu.Unlock()

	if src, ok := d.transport.(InterruptSource); ok {
		src.SetInterruptHandler(d.Interrupt)
	}
	d.transport.UnmaskInterrupt()

	var timeout <-chan time.Time
	if d.config.InitTimeout > 0 {
		timer := time.NewTimer(d.config.InitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	var err error
	select {
	case <-initCh:
		glog.Info("nwp: device started")
		return nil
	case <-fatalCh:
		err = ErrAborted
	case <-timeout:
		err = ErrInitTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	if serr := d.shutdown(); serr != nil {
		glog.Warningf("nwp: shutdown after failed start: %v", serr)
	}
	return err
}

func (d *Driver) resetLocked() {
	d.codec.Reset()
	d.pool.Reset()
	d.flow.Reset()
	d.deferred.Reset()
	d.lockCh = make(chan struct{}, 1)
	d.initCh = make(chan struct{})
	d.irqPending, d.cmdWaiting = false, false
	drain(d.cmdSync)
	drain(d.spawnCh)
}

// Stop asks the device to stop within timeout, waits for its confirmation
// and tears down the driver. While provisioning holds the device the stop
// command bypasses the global lock.
func (d *Driver) Stop(ctx context.Context, timeout time.Duration) error {
	d.mu.Lock()
	if !d.status.Has(StatusStarted) {
		d.mu.Unlock()
		return ErrNotStarted
	}
	if d.status.Has(StatusStopping) {
		d.mu.Unlock()
		return ErrStopping
	}
	d.status |= StatusStopping
	bypass := d.status.Has(StatusProvisioning)
	d.mu.Unlock()

	var errs framework.AggregatedError
	errs.Add(d.stopDevice(ctx, timeout, bypass))
	errs.Add(d.shutdown())
	glog.Info("nwp: stopped")
	return errs.Aggregate()
}

func (d *Driver) stopDevice(ctx context.Context, timeout time.Duration, bypass bool) error {
	h, err := d.pool.Acquire(ctx, pool.Key{Action: protocol.ActionStartStop, Socket: protocol.NoSocket})
	if err != nil {
		return d.poolErr(err)
	}
	defer d.pool.Release(h)

	var desc [4]byte
	ms := timeout / time.Millisecond
	if ms > 0xffff {
		ms = 0xffff
	}
	binary.LittleEndian.PutUint16(desc[0:2], uint16(ms))
	req := &Request{Opcode: protocol.OpDeviceStop, Desc: desc[:]}
	if bypass {
		glog.V(2).Info("nwp: stop bypassing lock during provisioning")
		err = d.write(req)
	} else {
		err = d.Do(ctx, req, nil)
	}
	if err != nil {
		return err
	}
	if _, err = d.pool.Wait(ctx, h, timeout+d.config.CmdTimeout); err == pool.ErrTimeout {
		glog.Warning("nwp: stop not confirmed by device")
		return nil
	}
	if err != nil {
		return d.poolErr(err)
	}
	return nil
}

// shutdown stops the deferred worker and releases every waiter.
func (d *Driver) shutdown() error {
	d.transport.MaskInterrupt()
	d.pool.ReleaseAll()
	d.flow.Abort()
	d.mu.Lock()
	cancel, runner := d.cancel, d.runner
	d.cancel, d.runner = nil, nil
	d.status &^= StatusStarted | StatusStopping | StatusProvisioning
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return runner.Wait()
}

// Restart clears the restart required latch and starts the driver again.
// The caller is responsible for resetting the device itself.
func (d *Driver) Restart(ctx context.Context) error {
	if err := d.shutdown(); err != nil {
		glog.Warningf("nwp: shutdown before restart: %v", err)
	}
	d.mu.Lock()
	d.fatalErr = nil
	d.status = 0
	d.fatalCh = make(chan struct{})
	d.mu.Unlock()
	glog.Info("nwp: restarting")
	return d.Start(ctx)
}

// Interrupt is the transport interrupt entry. It masks the line and wakes
// the waiting command or the deferred worker.
func (d *Driver) Interrupt() {
	d.transport.MaskInterrupt()
	d.mu.Lock()
	d.irqPending = true
	ch := d.spawnCh
	if d.cmdWaiting {
		ch = d.cmdSync
	}
	d.mu.Unlock()
	signal(ch)
}

func (d *Driver) takeIRQ() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := d.irqPending
	d.irqPending = false
	return pending
}

func (d *Driver) beginCmd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmdWaiting = true
	drain(d.cmdSync)
	if d.irqPending {
		signal(d.cmdSync)
	}
}

func (d *Driver) endCmd() {
	d.mu.Lock()
	d.cmdWaiting = false
	pending := d.irqPending
	d.mu.Unlock()
	if pending {
		signal(d.spawnCh)
	}
}

// acquire takes the global serialization lock. It fails once the restart
// required latch is set.
func (d *Driver) acquire(ctx context.Context) (chan struct{}, error) {
	d.mu.Lock()
	lockCh, fatalCh, latched := d.lockCh, d.fatalCh, d.fatalErr != nil
	d.mu.Unlock()
	if latched {
		return nil, ErrAborted
	}
	select {
	case lockCh <- struct{}{}:
	case <-fatalCh:
		return nil, ErrAborted
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if d.latched() {
		<-lockCh
		return nil, ErrAborted
	}
	return lockCh, nil
}

func (d *Driver) release(lock chan struct{}) {
	<-lock
}

func (d *Driver) latched() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatalErr != nil
}

// checkEntry rejects calls not allowed in the current lifecycle state.
func (d *Driver) checkEntry(op uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.fatalErr != nil:
		return ErrAborted
	case !d.status.Has(StatusStarted):
		return ErrNotStarted
	case d.status.Has(StatusStopping) && op != protocol.OpDeviceStop:
		return ErrStopping
	case d.status.Has(StatusProvisioning) && op != protocol.OpDeviceStop && op != protocol.OpWlanProvisioning:
		return ErrProvisioningActive
	}
	return nil
}

func (d *Driver) poolErr(err error) error {
	switch err {
	case pool.ErrAborted, pool.ErrStopping:
		if d.latched() {
			return ErrAborted
		}
		return ErrStopping
	}
	return err
}

func (d *Driver) setProvisioning(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if active {
		d.status |= StatusProvisioning
	} else {
		d.status &^= StatusProvisioning
	}
}

func (d *Driver) started() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status |= StatusStarted
	if d.initCh != nil {
		close(d.initCh)
		d.initCh = nil
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
