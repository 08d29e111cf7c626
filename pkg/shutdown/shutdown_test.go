package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsHooksLIFO(t *testing.T) {
	m := New(time.Second, nil)
	var order []string
	m.Register("store", func(context.Context) error { order = append(order, "store"); return nil })
	m.Register("cache", func(context.Context) error { order = append(order, "cache"); return errors.New("boom") })
	m.Register("http", func(context.Context) error { order = append(order, "http"); return nil })

	failed := m.Shutdown()

	assert.Equal(t, []string{"http", "cache", "store"}, order)
	assert.Equal(t, 1, failed)
	select {
	case <-m.Done():
	default:
		t.Fatal("Done must be closed after Shutdown")
	}
}

func TestWaitWithContextTrigger(t *testing.T) {
	m := New(time.Second, nil)
	var ran atomic.Bool
	m.Register("flag", func(context.Context) error { ran.Store(true); return nil })

	go m.Trigger()
	require.NoError(t, m.WaitWithContext(context.Background()))
	assert.True(t, ran.Load())
}

func TestWaitWithContextCancelled(t *testing.T) {
	m := New(time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.WaitWithContext(ctx), context.Canceled)
}

func TestWaitFor(t *testing.T) {
	var done atomic.Bool
	time.AfterFunc(10*time.Millisecond, func() { done.Store(true) })
	require.NoError(t, WaitFor(done.Load, time.Millisecond)(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.Error(t, WaitFor(func() bool { return false }, time.Millisecond)(ctx))
}
