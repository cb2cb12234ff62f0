package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collector) Handle(e Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, e)
}

func (c *collector) snapshot() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, len(c.envs))
	copy(out, c.envs)
	return out
}

func TestEmitterAlwaysEmitsTickFrame(t *testing.T) {
	e := NewEmitter(context.Background(), nil, 16, 0.0)
	c := &collector{}
	e.Subscribe(c)
	require.NoError(t, e.Start())
	defer e.Stop()

	e.Emit(Envelope{V: 1, FrameID: 1, Type: TypeTickFrame, Payload: TickFramePayload{}})

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, time.Millisecond)
}

func TestEmitterSinkPanicDoesNotStopDrain(t *testing.T) {
	e := NewEmitter(context.Background(), nil, 16, 1.0)
	e.Subscribe(SinkFunc(func(Envelope) { panic("boom") }))
	c := &collector{}
	e.Subscribe(c)
	require.NoError(t, e.Start())
	defer e.Stop()

	e.Emit(Envelope{V: 1, FrameID: 1, Type: TypeStrideExec})
	e.Emit(Envelope{V: 1, FrameID: 2, Type: TypeStrideExec})

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, time.Millisecond)
}

func TestRecentEvents(t *testing.T) {
	e := NewEmitter(context.Background(), nil, 16, 1.0)
	require.NoError(t, e.Start())
	defer e.Stop()

	for i := uint64(1); i <= 5; i++ {
		e.Emit(Envelope{FrameID: i, Type: TypeTickFrame})
	}

	require.Eventually(t, func() bool { return len(e.RecentEvents(100)) == 5 }, time.Second, time.Millisecond)
	recent := e.RecentEvents(2)
	assert.Len(t, recent, 2)
	assert.Equal(t, uint64(5), recent[1].FrameID)
}
