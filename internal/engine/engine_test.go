package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ai-agentic-browser/eventbus/internal/eventmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTicker(producer, symbol string) *eventmodel.Ticker {
	return &eventmodel.Ticker{
		Base: eventmodel.Base{
			Type:       eventmodel.TypeTicker,
			Timestamp:  time.Now(),
			ProducerID: producer,
		},
		Symbol: symbol,
	}
}

func TestRegisterDispatchesOnlyMatchingType(t *testing.T) {
	e := New()
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	var mu sync.Mutex
	var got []eventmodel.Type
	done := make(chan struct{}, 1)

	e.Register(eventmodel.TypeTicker, func(ctx context.Context, evt eventmodel.Event) {
		mu.Lock()
		got = append(got, evt.Kind())
		mu.Unlock()
		done <- struct{}{}
	})
	e.Register(eventmodel.TypeTrade, func(ctx context.Context, evt eventmodel.Event) {
		t.Error("trade listener should not fire for a ticker event")
	})

	e.Put(context.Background(), newTicker("p1", "BTC-USDT"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatch")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []eventmodel.Type{eventmodel.TypeTicker}, got)
}

func TestRegisterGlobalIgnoreSelf(t *testing.T) {
	e := New()
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	var calls int32
	var mu sync.Mutex
	e.RegisterGlobal(func(ctx context.Context, evt eventmodel.Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, true)

	selfCtx := WithProducer(context.Background(), "self-producer")
	e.Put(selfCtx, newTicker("self-producer", "BTC-USDT"))
	e.Put(context.Background(), newTicker("other-producer", "BTC-USDT"))

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), calls, "ignore_self should suppress delivery for the producer's own context")
}

func TestInjectCall(t *testing.T) {
	e := New()
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	e.Inject("get_position", func(args ...interface{}) (interface{}, error) {
		return "flat", nil
	})

	result, err := e.Call("get_position", "BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "flat", result)

	_, err = e.Call("no_such_capability")
	assert.Error(t, err)
}

type fakeComponent struct {
	started int32
	stopped int32
}

func (c *fakeComponent) Start(e *Engine) error { c.started++; return nil }
func (c *fakeComponent) Stop() error           { c.stopped++; return nil }

func TestAttachDetachLifecycle(t *testing.T) {
	e := New()
	require.NoError(t, e.Start(context.Background()))

	c := &fakeComponent{}
	require.NoError(t, e.Attach(c))
	assert.Equal(t, int32(1), c.started)

	require.NoError(t, e.Detach(c))
	assert.Equal(t, int32(1), c.stopped)

	require.NoError(t, e.Stop())
}

func TestListenerPanicDoesNotAbortDispatch(t *testing.T) {
	e := New()
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	done := make(chan struct{}, 1)
	e.Register(eventmodel.TypeTicker, func(ctx context.Context, evt eventmodel.Event) {
		panic("boom")
	})
	e.Register(eventmodel.TypeTicker, func(ctx context.Context, evt eventmodel.Event) {
		done <- struct{}{}
	})

	e.Put(context.Background(), newTicker("p1", "BTC-USDT"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second listener was never invoked after the first panicked")
	}
}
