package api

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EchoCog/echocore/internal/events"
)

const clientBufferSize = 64

// hub implements events.Sink, fanning out every envelope it receives to
// every connected websocket client without blocking the emitter's drain
// goroutine — mirroring the emitter's own back-pressure contract (drop
// rather than block), per client rather than globally.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan events.Envelope
}

func newHub() *hub {
	return &hub{clients: map[*websocket.Conn]chan events.Envelope{}}
}

// Handle implements events.Sink.
func (h *hub) Handle(env events.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- env:
		default:
			// Slow client: drop rather than block the dispatch loop.
		}
	}
}

// serve registers conn, runs its writer loop until the connection closes,
// and drains reads (discarding them) just to detect client-initiated close.
func (h *hub) serve(conn *websocket.Conn, log *zap.SugaredLogger) {
	ch := make(chan events.Envelope, clientBufferSize)

	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case env := <-ch:
			if err := conn.WriteJSON(env); err != nil {
				log.Debugw("websocket write failed, closing", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}
