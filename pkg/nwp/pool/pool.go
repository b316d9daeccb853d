// Package pool correlates asynchronous NWP replies with waiting callers.
//
// The pool is a fixed array of action slots. Free, Active and Pending lists
// are chained through slot indices, a slot is a member of exactly one list.
// At most one Active slot exists per correlation key; later requests for
// the same key wait in Pending and are promoted one at a time on release.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

var (
	// ErrPoolEmpty indicates no slot can be allocated without blocking.
	ErrPoolEmpty = errors.New("pool empty")
	// ErrStopping indicates the pool is being torn down.
	ErrStopping = errors.New("pool stopping")
	// ErrAborted is delivered to every waiter by ReleaseAll.
	ErrAborted = errors.New("action aborted")
	// ErrTimeout indicates the async reply didn't arrive in time.
	ErrTimeout = errors.New("async reply timeout")
)

const none = -1

// Key is the correlation key of a slot.
type Key struct {
	Action protocol.ActionKind
	// Socket is protocol.NoSocket when the action itself is the key.
	Socket uint8
}

// String implements fmt.Stringer.
func (k Key) String() string {
	if k.Socket == protocol.NoSocket {
		return k.Action.String()
	}
	return fmt.Sprintf("%s/sd%d", k.Action, k.Socket)
}

// Conflicts indicates both keys can't be Active at the same time.
// Socket keys conflict on the socket id, other keys on the action.
func (k Key) Conflicts(o Key) bool {
	if k.Socket != protocol.NoSocket || o.Socket != protocol.NoSocket {
		return k.Socket == o.Socket
	}
	return k.Action == o.Action
}

// Handle refers to an allocated slot.
type Handle struct {
	ID  int
	gen uint32
}

type slotState int

const (
	stateFree slotState = iota
	stateActive
	statePending
)

type slot struct {
	key    Key
	state  slotState
	next   int
	gen    uint32
	wakeCh chan struct{}
	result []byte
	err    error
}

type list struct {
	head int
}

// Pool is the fixed-size correlation pool.
type Pool struct {
	slots    []slot
	free     list
	active   list
	pending  list
	stopping bool
	lock     sync.Mutex
}

// New creates a Pool with size slots.
func New(size int) *Pool {
	p := &Pool{slots: make([]slot, size)}
	for i := range p.slots {
		p.slots[i].wakeCh = make(chan struct{}, 1)
	}
	p.Reset()
	return p
}

// Reset returns every slot to Free and clears the stopping state. Handles
// issued before Reset become invalid.
func (p *Pool) Reset() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.free.head, p.active.head, p.pending.head = none, none, none
	for i := len(p.slots) - 1; i >= 0; i-- {
		s := &p.slots[i]
		s.key, s.state, s.result, s.err = Key{}, stateFree, nil, nil
		s.gen++
		drain(s.wakeCh)
		p.pushFront(&p.free, i)
	}
	p.stopping = false
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return len(p.slots)
}

type noWaitKey struct{}

// WithNoWait marks ctx as the deferred event worker context in which
// Acquire must never block.
func WithNoWait(ctx context.Context) context.Context {
	return context.WithValue(ctx, noWaitKey{}, true)
}

// IsNoWait tells whether ctx was marked with WithNoWait.
func IsNoWait(ctx context.Context) bool {
	v, _ := ctx.Value(noWaitKey{}).(bool)
	return v
}

// Acquire allocates a slot for key. When an Active slot conflicts, the
// caller waits in Pending until that slot is released, unless ctx is a
// no-wait context in which case ErrPoolEmpty is returned.
func (p *Pool) Acquire(ctx context.Context, key Key) (Handle, error) {
	p.lock.Lock()
	if p.stopping {
		p.lock.Unlock()
		return Handle{}, ErrStopping
	}
	id := p.free.head
	if id == none {
		p.lock.Unlock()
		return Handle{}, ErrPoolEmpty
	}
	p.remove(&p.free, id)
	s := &p.slots[id]
	s.key, s.result, s.err = key, nil, nil
	drain(s.wakeCh)
	h := Handle{ID: id, gen: s.gen}

	if !p.conflictsActive(key) {
		s.state = stateActive
		p.pushFront(&p.active, id)
		p.lock.Unlock()
		return h, nil
	}
	if IsNoWait(ctx) {
		s.key = Key{}
		p.pushFront(&p.free, id)
		p.lock.Unlock()
		return Handle{}, ErrPoolEmpty
	}
	s.state = statePending
	p.pushBack(&p.pending, id)
	p.lock.Unlock()
	glog.V(4).Infof("pool: slot %d pending on %s", id, key)

	select {
	case <-s.wakeCh:
	case <-ctx.Done():
		p.lock.Lock()
		defer p.lock.Unlock()
		if s.gen == h.gen && s.state != stateFree {
			p.releaseLocked(id)
		}
		return Handle{}, ctx.Err()
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if s.gen != h.gen || s.state != stateActive {
		return Handle{}, ErrAborted
	}
	if s.err != nil {
		return Handle{}, s.err
	}
	return h, nil
}

// Release returns the slot to Free and promotes the first Pending slot
// with a conflicting key. Releasing a stale handle is a no-op.
func (p *Pool) Release(h Handle) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.valid(h) {
		return
	}
	p.releaseLocked(h.ID)
}

func (p *Pool) releaseLocked(id int) {
	s := &p.slots[id]
	switch s.state {
	case stateFree:
		return
	case statePending:
		p.remove(&p.pending, id)
	case stateActive:
		p.remove(&p.active, id)
		for j := p.pending.head; j != none; j = p.slots[j].next {
			if p.slots[j].key.Conflicts(s.key) {
				p.remove(&p.pending, j)
				p.slots[j].state = stateActive
				p.pushFront(&p.active, j)
				signal(p.slots[j].wakeCh)
				glog.V(4).Infof("pool: slot %d promoted on %s", j, p.slots[j].key)
				break
			}
		}
	}
	s.key, s.state, s.result, s.err = Key{}, stateFree, nil, nil
	s.gen++
	p.pushFront(&p.free, id)
}

// ReleaseAll aborts every Active and Pending slot and stops allocation.
// All blocked callers wake up with ErrAborted.
func (p *Pool) ReleaseAll() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.stopping = true
	for _, lst := range []*list{&p.active, &p.pending} {
		for lst.head != none {
			id := lst.head
			p.remove(lst, id)
			s := &p.slots[id]
			s.key, s.state, s.result, s.err = Key{}, stateFree, nil, ErrAborted
			s.gen++
			signal(s.wakeCh)
			p.pushFront(&p.free, id)
		}
	}
}

// Wait blocks until the slot is completed or aborted. timeout 0 waits
// until ctx is done.
func (p *Pool) Wait(ctx context.Context, h Handle, timeout time.Duration) ([]byte, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-p.Ready(h):
	case <-timer:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.Result(h)
}

var closedCh = make(chan struct{})

func init() {
	close(closedCh)
}

// Ready returns the channel signaled once when the slot is completed or
// aborted. Receive from it, then collect the outcome with Result.
func (p *Pool) Ready(h Handle) <-chan struct{} {
	if h.ID < 0 || h.ID >= len(p.slots) {
		return closedCh
	}
	return p.slots[h.ID].wakeCh
}

// Result returns the outcome stored by Complete or Deliver.
func (p *Pool) Result(h Handle) ([]byte, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.valid(h) {
		return nil, ErrAborted
	}
	s := &p.slots[h.ID]
	return s.result, s.err
}

// Complete stores the result in an Active slot and wakes its waiter.
func (p *Pool) Complete(h Handle, result []byte, err error) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.valid(h) || p.slots[h.ID].state != stateActive {
		return false
	}
	p.completeLocked(h.ID, result, err)
	return true
}

// Deliver completes the Active slot matching key exactly.
func (p *Pool) Deliver(key Key, result []byte, err error) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	for id := p.active.head; id != none; id = p.slots[id].next {
		if p.slots[id].key == key {
			p.completeLocked(id, result, err)
			return true
		}
	}
	return false
}

func (p *Pool) completeLocked(id int, result []byte, err error) {
	s := &p.slots[id]
	s.result, s.err = result, err
	signal(s.wakeCh)
}

// Stats counts the members of each list.
func (p *Pool) Stats() (free, active, pending int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.count(&p.free), p.count(&p.active), p.count(&p.pending)
}

// ActiveKeys lists keys of all Active slots.
func (p *Pool) ActiveKeys() []Key {
	p.lock.Lock()
	defer p.lock.Unlock()
	var keys []Key
	for id := p.active.head; id != none; id = p.slots[id].next {
		keys = append(keys, p.slots[id].key)
	}
	return keys
}

func (p *Pool) valid(h Handle) bool {
	return h.ID >= 0 && h.ID < len(p.slots) && p.slots[h.ID].gen == h.gen
}

func (p *Pool) conflictsActive(key Key) bool {
	for id := p.active.head; id != none; id = p.slots[id].next {
		if p.slots[id].key.Conflicts(key) {
			return true
		}
	}
	return false
}

func (p *Pool) count(lst *list) (n int) {
	for id := lst.head; id != none; id = p.slots[id].next {
		n++
	}
	return
}

func (p *Pool) pushFront(lst *list, id int) {
	p.slots[id].next = lst.head
	lst.head = id
}

func (p *Pool) pushBack(lst *list, id int) {
	p.slots[id].next = none
	if lst.head == none {
		lst.head = id
		return
	}
	last := lst.head
	for p.slots[last].next != none {
		last = p.slots[last].next
	}
	p.slots[last].next = id
}

func (p *Pool) remove(lst *list, id int) {
	if lst.head == id {
		lst.head = p.slots[id].next
		p.slots[id].next = none
		return
	}
	for prev := lst.head; prev != none; prev = p.slots[prev].next {
		if p.slots[prev].next == id {
			p.slots[prev].next = p.slots[id].next
			p.slots[id].next = none
			return
		}
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
