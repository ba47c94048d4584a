package events

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/openflow/dictation/internal/trace"
)

// wireMessage is the envelope every event travels in.
type wireMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	// subscriberBuffer bounds the in-process subscriber channels; a slow
	// subscriber loses events rather than stalling the publisher.
	subscriberBuffer = 128

	writeTimeout = 2 * time.Second
)

// Bus fans events out to WebSocket clients and in-process subscribers.
// Publishing never blocks.
type Bus struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]context.Context
	subs  []chan Envelope

	// writeMu serializes WebSocket writes; wsjson allows only one
	// concurrent writer per connection.
	writeMu sync.Mutex
}

// Envelope pairs an event name with its payload for in-process subscribers.
type Envelope struct {
	Name    string
	Payload any
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{conns: make(map[*websocket.Conn]context.Context)}
}

// Subscribe returns a channel receiving every published event. Used by
// tests and by any in-process listener (e.g. debug transcript capture).
func (b *Bus) Subscribe() <-chan Envelope {
	ch := make(chan Envelope, subscriberBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers a one-shot event to every connected client and
// subscriber. Slow consumers drop; the publisher never blocks.
func (b *Bus) Publish(name string, payload any) {
	env := Envelope{Name: name, Payload: payload}

	b.mu.RLock()
	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
		}
	}
	conns := make(map[*websocket.Conn]context.Context, len(b.conns))
	for c, ctx := range b.conns {
		conns[c] = ctx
	}
	b.mu.RUnlock()

	if len(conns) == 0 {
		return
	}
	msg := wireMessage{Type: name, Payload: payload}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	for conn, ctx := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		if err := wsjson.Write(writeCtx, conn, msg); err != nil {
			slog.Debug("websocket write failed", "event", name, "error", err)
		}
		cancel()
	}
}

// Handler returns the HTTP handler exposing the /ws endpoint.
func (b *Bus) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWebSocket)
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (b *Bus) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx := r.Context()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	b.mu.Lock()
	b.conns[conn] = context.WithoutCancel(ctx)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
	}()

	// The bus is outbound-only; inbound reads exist solely to detect
	// disconnects and keep the control frames flowing.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			log.Debug("websocket closed", "error", err)
			return
		}
	}
}

// Close drops every connection and subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
	}
	b.conns = make(map[*websocket.Conn]context.Context)
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
