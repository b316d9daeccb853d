package stream

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInterruptOnData(t *testing.T) {
	host, device := net.Pipe()
	tr := New(host)
	defer tr.Close()

	irqCh := make(chan struct{}, 4)
	tr.SetInterruptHandler(func() { irqCh <- struct{}{} })

	go device.Write([]byte{1, 2, 3, 4})
	require.Eventually(t, func() bool { return tr.Buffered() == 4 }, time.Second, time.Millisecond)
	select {
	case <-irqCh:
		t.Fatal("raised while masked")
	default:
	}

	tr.UnmaskInterrupt()
	select {
	case <-irqCh:
	case <-time.After(time.Second):
		t.Fatal("not raised on unmask")
	}

	buf := make([]byte, 4)
	_, err := io.ReadFull(tr, buf)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, buf)

	// raised interrupt masks the line until unmasked again
	go device.Write([]byte{5})
	require.Eventually(t, func() bool { return tr.Buffered() == 1 }, time.Second, time.Millisecond)
	select {
	case <-irqCh:
		t.Fatal("raised again without unmask")
	default:
	}
	tr.UnmaskInterrupt()
	select {
	case <-irqCh:
	case <-time.After(time.Second):
		t.Fatal("not raised")
	}
}

func TestWriteAndClose(t *testing.T) {
	host, device := net.Pipe()
	tr := New(host)
	go func() {
		tr.Write([]byte("nwp"))
	}()
	buf := make([]byte, 3)
	_, err := io.ReadFull(device, buf)
	require.NoError(t, err)
	require.Equal(t, "nwp", string(buf))

	device.Close()
	_, err = tr.Read(buf)
	require.Equal(t, io.EOF, err)
}
