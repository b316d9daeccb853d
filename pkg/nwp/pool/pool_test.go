package pool

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/nwp.go/pkg/nwp/protocol"
)

func sockKey(action protocol.ActionKind, sd uint8) Key {
	return Key{Action: action, Socket: sd}
}

func actionKey(action protocol.ActionKind) Key {
	return Key{Action: action, Socket: protocol.NoSocket}
}

func requireExclusive(t *testing.T, p *Pool) {
	keys := p.ActiveKeys()
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			require.Falsef(t, keys[i].Conflicts(keys[j]), "%s and %s both active", keys[i], keys[j])
		}
	}
}

func TestKeyConflicts(t *testing.T) {
	testCases := []struct {
		name     string
		a, b     Key
		conflict bool
	}{
		{"same socket", sockKey(protocol.ActionRecv, 1), sockKey(protocol.ActionConnect, 1), true},
		{"different socket", sockKey(protocol.ActionRecv, 1), sockKey(protocol.ActionRecv, 2), false},
		{"same action", actionKey(protocol.ActionPing), actionKey(protocol.ActionPing), true},
		{"different action", actionKey(protocol.ActionPing), actionKey(protocol.ActionSelect), false},
		{"socket vs action", sockKey(protocol.ActionRecv, uint8(protocol.ActionRecv)), actionKey(protocol.ActionRecv), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.conflict, tc.a.Conflicts(tc.b))
			require.Equal(t, tc.conflict, tc.b.Conflicts(tc.a))
		})
	}
}

func TestAcquireBeyondCapacity(t *testing.T) {
	p := New(4)
	ctx := context.Background()
	var handles []Handle
	for i := 0; i < 4; i++ {
		h, err := p.Acquire(ctx, sockKey(protocol.ActionRecv, uint8(i)))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for i := 0; i < 3; i++ {
		_, err := p.Acquire(ctx, sockKey(protocol.ActionRecv, uint8(10+i)))
		require.Equal(t, ErrPoolEmpty, err)
	}
	free, active, pending := p.Stats()
	require.Equal(t, 0, free)
	require.Equal(t, 4, active)
	require.Equal(t, 0, pending)
	for _, h := range handles {
		p.Release(h)
		p.Release(h)
	}
	free, active, pending = p.Stats()
	require.Equal(t, 4, free)
	require.Equal(t, 0, active)
	require.Equal(t, 0, pending)
}

func TestPendingPromotion(t *testing.T) {
	p := New(4)
	ctx := context.Background()
	first, err := p.Acquire(ctx, sockKey(protocol.ActionRecv, 3))
	require.NoError(t, err)

	acquired := make(chan Handle, 2)
	go func() {
		h, err := p.Acquire(ctx, sockKey(protocol.ActionConnect, 3))
		require.NoError(t, err)
		acquired <- h
	}()
	require.Eventually(t, func() bool {
		_, _, pending := p.Stats()
		return pending == 1
	}, time.Second, time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("second caller must wait")
	default:
	}

	p.Release(first)
	var second Handle
	select {
	case second = <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second caller not woken")
	}
	require.Equal(t, []Key{sockKey(protocol.ActionConnect, 3)}, p.ActiveKeys())
	select {
	case <-acquired:
		t.Fatal("woken twice")
	case <-time.After(10 * time.Millisecond):
	}
	p.Release(second)
	free, _, _ := p.Stats()
	require.Equal(t, 4, free)
}

func TestNoWaitContext(t *testing.T) {
	p := New(2)
	ctx := context.Background()
	_, err := p.Acquire(ctx, actionKey(protocol.ActionPing))
	require.NoError(t, err)
	_, err = p.Acquire(WithNoWait(ctx), actionKey(protocol.ActionPing))
	require.Equal(t, ErrPoolEmpty, err)
	free, active, pending := p.Stats()
	require.Equal(t, 1, free)
	require.Equal(t, 1, active)
	require.Equal(t, 0, pending)
}

func TestDeliverAndWait(t *testing.T) {
	p := New(2)
	ctx := context.Background()
	h, err := p.Acquire(ctx, sockKey(protocol.ActionRecv, 1))
	require.NoError(t, err)
	require.False(t, p.Deliver(sockKey(protocol.ActionRecv, 2), []byte{1}, nil))
	require.True(t, p.Deliver(sockKey(protocol.ActionRecv, 1), []byte{1, 2}, nil))
	data, err := p.Wait(ctx, h, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, data)

	_, err = p.Wait(ctx, h, 5*time.Millisecond)
	require.Equal(t, ErrTimeout, err)
	p.Release(h)
}

func TestAcquireCanceled(t *testing.T) {
	p := New(2)
	first, err := p.Acquire(context.Background(), actionKey(protocol.ActionSelect))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, actionKey(protocol.ActionSelect))
	require.Equal(t, context.DeadlineExceeded, err)
	free, active, pending := p.Stats()
	require.Equal(t, 1, free)
	require.Equal(t, 1, active)
	require.Equal(t, 0, pending)
	p.Release(first)
}

func TestReleaseAll(t *testing.T) {
	p := New(6)
	ctx := context.Background()
	const n = 5
	errs := make(chan error, n)
	var started sync.WaitGroup
	for i := 0; i < n; i++ {
		started.Add(1)
		go func(i int) {
			// sockets 0,1,0,1,0: two active, three pending
			h, err := p.Acquire(ctx, sockKey(protocol.ActionRecv, uint8(i%2)))
			started.Done()
			if err != nil {
				errs <- err
				return
			}
			_, err = p.Wait(ctx, h, 0)
			p.Release(h)
			errs <- err
		}(i)
	}
	require.Eventually(t, func() bool {
		_, active, pending := p.Stats()
		return active == 2 && pending == 3
	}, time.Second, time.Millisecond)

	p.ReleaseAll()
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			require.Equal(t, ErrAborted, err)
		case <-time.After(time.Second):
			t.Fatal("caller not released")
		}
	}
	free, active, pending := p.Stats()
	require.Equal(t, 6, free)
	require.Zero(t, active)
	require.Zero(t, pending)

	_, err := p.Acquire(ctx, actionKey(protocol.ActionPing))
	require.Equal(t, ErrStopping, err)
	p.Reset()
	h, err := p.Acquire(ctx, actionKey(protocol.ActionPing))
	require.NoError(t, err)
	p.Release(h)
}

func TestMutualExclusion(t *testing.T) {
	p := New(8)
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				var key Key
				if rnd.Intn(2) == 0 {
					key = sockKey(protocol.ActionRecv, uint8(rnd.Intn(3)))
				} else {
					key = actionKey(protocol.ActionKind(1 + rnd.Intn(2)))
				}
				h, err := p.Acquire(ctx, key)
				if err == ErrPoolEmpty {
					continue
				}
				require.NoError(t, err)
				mu.Lock()
				requireExclusive(t, p)
				mu.Unlock()
				p.Release(h)
			}
		}(int64(w))
	}
	wg.Wait()
	free, active, pending := p.Stats()
	require.Equal(t, 8, free)
	require.Zero(t, active)
	require.Zero(t, pending)
}
