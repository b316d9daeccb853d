// Package stream adapts a byte stream (TCP, serial bridge, websocket) into
// an NWP transport with an emulated interrupt line.
package stream

import (
	"io"
	"sync"

	"github.com/golang/glog"
)

// Transport buffers bytes received from the stream in the background and
// raises the interrupt while data is pending and the line is unmasked.
// The interrupt masks itself when raised, like an edge triggered line.
type Transport struct {
	conn io.ReadWriteCloser

	buf     []byte
	err     error
	masked  bool
	handler func()
	lock    sync.Mutex
	cond    *sync.Cond
}

// New creates a Transport and starts reading conn.
func New(conn io.ReadWriteCloser) *Transport {
	t := &Transport{conn: conn, masked: true}
	t.cond = sync.NewCond(&t.lock)
	go t.readLoop()
	return t
}

func (t *Transport) readLoop() {
	chunk := make([]byte, 4096)
	for {
		n, err := t.conn.Read(chunk)
		t.lock.Lock()
		t.buf = append(t.buf, chunk[:n]...)
		if err != nil {
			t.err = err
		}
		t.cond.Broadcast()
		fire := t.raiseLocked()
		t.lock.Unlock()
		if fire != nil {
			fire()
		}
		if err != nil {
			glog.V(2).Infof("stream: read loop stopped: %v", err)
			return
		}
	}
}

func (t *Transport) raiseLocked() func() {
	if t.masked || t.handler == nil || (len(t.buf) == 0 && t.err == nil) {
		return nil
	}
	t.masked = true
	return t.handler
}

// Read implements io.Reader. It blocks until data is available.
func (t *Transport) Read(p []byte) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for len(t.buf) == 0 && t.err == nil {
		t.cond.Wait()
	}
	if len(t.buf) == 0 {
		return 0, t.err
	}
	n := copy(p, t.buf)
	t.buf = t.buf[n:]
	return n, nil
}

// Write implements io.Writer.
func (t *Transport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

// SetInterruptHandler sets the function called when the interrupt is
// raised.
func (t *Transport) SetInterruptHandler(fn func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.handler = fn
}

// MaskInterrupt masks the interrupt line.
func (t *Transport) MaskInterrupt() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.masked = true
}

// UnmaskInterrupt unmasks the line, raising it at once if data is pending.
func (t *Transport) UnmaskInterrupt() {
	t.lock.Lock()
	t.masked = false
	fire := t.raiseLocked()
	t.lock.Unlock()
	if fire != nil {
		fire()
	}
}

// Buffered returns the number of received bytes not yet read.
func (t *Transport) Buffered() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.buf)
}

// Close closes the underlying stream.
func (t *Transport) Close() error {
	return t.conn.Close()
}
