package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink receives a fully-formed Envelope. Implementations must not block —
// the emitter calls sinks synchronously from its single drain goroutine.
type Sink interface {
	Handle(Envelope)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Envelope)

func (f SinkFunc) Handle(e Envelope) { f(e) }

// Emitter buffers, samples, and dispatches the typed event stream. Shape —
// bounded channel, panic-guarded dispatch, fixed-size replay history — is
// grounded directly on core/deeptreeecho/cognitive_event_bus.go's
// CognitiveEventBus, generalized from ad hoc cognitive events to the
// frame-pipeline's fixed schema.
type Emitter struct {
	mu   sync.RWMutex
	ctx  context.Context
	log  *zap.SugaredLogger

	queue   chan Envelope
	sinks   []Sink

	history    []Envelope
	maxHistory int

	sampleRate float64
	alwaysOn   map[Type]bool // tick_frame.v1 etc. are never sampled out

	sampledOutCount atomic.Uint64
	totalEmitted    atomic.Uint64

	running bool
	done    chan struct{}
}

// NewEmitter creates an emitter with the given buffer size and sample rate.
func NewEmitter(ctx context.Context, log *zap.SugaredLogger, bufferSize int, sampleRate float64) *Emitter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Emitter{
		ctx:        ctx,
		log:        log,
		queue:      make(chan Envelope, bufferSize),
		history:    make([]Envelope, 0, 128),
		maxHistory: 128,
		sampleRate: sampleRate,
		alwaysOn: map[Type]bool{
			TypeTickFrame:     true,
			TypeSafeModeEnter: true,
			TypeSafeModeExit:  true,
		},
		done: make(chan struct{}),
	}
}

// Subscribe registers a sink. Sinks added after Start still receive every
// subsequent event.
func (e *Emitter) Subscribe(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// Start begins the drain goroutine.
func (e *Emitter) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("events: emitter already running")
	}
	e.running = true
	e.mu.Unlock()

	go e.drain()
	return nil
}

// Stop halts the drain goroutine; already-queued events are dropped.
func (e *Emitter) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.done)
}

// Emit enqueues an event, honoring the sampling rate for everything except
// the always-on types. On a full buffer the oldest event is not evicted in
// place (channels don't support that) — instead the new event is dropped
// and sampled_out_count increments, which is the same observable contract.
func (e *Emitter) Emit(env Envelope) {
	if !e.alwaysOn[env.Type] && !e.shouldSample() {
		e.sampledOutCount.Add(1)
		return
	}

	select {
	case e.queue <- env:
	default:
		e.sampledOutCount.Add(1)
		e.log.Warnw("event queue full, dropping event", "type", env.Type, "frame_id", env.FrameID)
	}
}

func (e *Emitter) shouldSample() bool {
	if e.sampleRate >= 1.0 {
		return true
	}
	return deterministicSample(e.sampleRate)
}

// deterministicSample is a free-running counter-based sampler rather than
// math/rand, so emitter behavior stays reproducible across runs at a fixed
// sample rate (frame counts are already deterministic inputs elsewhere in
// this engine; telemetry shouldn't be the one non-reproducible piece).
var sampleCounter atomic.Uint64

func deterministicSample(rate float64) bool {
	if rate <= 0 {
		return false
	}
	n := sampleCounter.Add(1)
	// Keep roughly `rate` fraction of events using a fixed-denominator
	// bucket test; denominator of 1000 gives three-decimal precision.
	bucket := uint64(rate * 1000)
	return n%1000 < bucket
}

func (e *Emitter) drain() {
	for {
		select {
		case env := <-e.queue:
			e.dispatch(env)
		case <-e.done:
			return
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Emitter) dispatch(env Envelope) {
	e.mu.Lock()
	e.history = append(e.history, env)
	if len(e.history) > e.maxHistory {
		e.history = e.history[len(e.history)-e.maxHistory:]
	}
	sinks := make([]Sink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.Unlock()

	e.totalEmitted.Add(1)

	for _, s := range sinks {
		e.safeHandle(s, env)
	}
}

// safeHandle guards each sink the way cognitive_event_bus.go's
// safeExecuteHandler guards handlers — a sink panic must not crash the
// drain goroutine or the frame that raised the event.
func (e *Emitter) safeHandle(s Sink, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("event sink panicked", "type", env.Type, "recover", r)
		}
	}()
	s.Handle(env)
}

// RecentEvents returns up to count most-recent dispatched events, for late
// -connecting consumers that missed earlier history.
func (e *Emitter) RecentEvents(count int) []Envelope {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if count > len(e.history) {
		count = len(e.history)
	}
	start := len(e.history) - count
	out := make([]Envelope, count)
	copy(out, e.history[start:])
	return out
}

// SampledOutCount is the back-pressure metric.
func (e *Emitter) SampledOutCount() uint64 { return e.sampledOutCount.Load() }

// TotalEmitted is the lifetime dispatched-event counter.
func (e *Emitter) TotalEmitted() uint64 { return e.totalEmitted.Load() }
