package framework

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunnerCollectsErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errBoom := errors.New("boom")
	r := NewRunnerWith(ctx).Go(
		NamedRun("canceled", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		RunFunc(func(context.Context) error { return errBoom }),
		RunFunc(func(context.Context) error { return io.EOF }),
	)
	cancel()
	err := r.Wait()
	require.ErrorIs(t, err, errBoom)
	require.ErrorIs(t, err, io.EOF)
	require.NotErrorIs(t, err, context.Canceled)
}

func TestAggregateSingle(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	require.Equal(t, io.EOF, errs.Add(io.EOF).Aggregate())
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	c := &closeCounter{}
	require.Equal(t, io.EOF, RunWithContextCloser(context.Background(), c, func() error { return io.EOF }))
	require.Equal(t, 1, c.closed)

	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	go cancel()
	err := RunWithContextCancel(ctx, func() { close(unblock) }, func() error {
		<-unblock
		return io.ErrClosedPipe
	})
	require.Equal(t, context.Canceled, err)
}
