// internal/handlers/writer.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/villeneuve-games/fortyone/internal/game"
)

const (
	// writerBacklog bounds the per-connection queue. A client this far behind
	// cannot repair its delta baseline anyway, so overflow closes the socket
	// and the client rejoins with a fresh snapshot.
	writerBacklog = 64
	writeTimeout  = 3 * time.Second
)

// connWriter holds one connection's outbound queue and its stop signal.
type connWriter struct {
	ch   chan []byte
	done chan struct{}
}

// writerPool serializes outbound events per connection. The rules engine
// invokes SendFunc with the session lock held, so events are marshalled and
// queued synchronously; a single goroutine per connection drains the queue in
// order, which keeps every delta behind the snapshot it was diffed against.
type writerPool struct {
	mu      sync.Mutex
	writers map[*websocket.Conn]*connWriter
	logger  *logrus.Logger

	// write and closeSlow are swapped out by tests.
	write     func(conn *websocket.Conn, data []byte) error
	closeSlow func(conn *websocket.Conn)
}

func newWriterPool(logger *logrus.Logger) *writerPool {
	p := &writerPool{
		writers: make(map[*websocket.Conn]*connWriter),
		logger:  logger,
	}
	p.write = func(conn *websocket.Conn, data []byte) error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return conn.Write(ctx, websocket.MessageText, data)
	}
	p.closeSlow = func(conn *websocket.Conn) {
		conn.Close(websocket.StatusPolicyViolation, "outbound backlog")
	}
	return p
}

// sendFunc adapts the pool to the rules engine's transport hook. Audiences
// without a live socket (bot seats, tests) are skipped.
func (p *writerPool) sendFunc() game.SendFunc {
	return func(aud string, conn *websocket.Conn, ev game.Event) {
		if conn == nil {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			p.logger.Errorf("failed to marshal %s event for %s: %v", ev.Type, aud, err)
			return
		}
		p.enqueue(aud, conn, ev.Type, data)
	}
}

func (p *writerPool) enqueue(aud string, conn *websocket.Conn, evType game.EventType, data []byte) {
	p.mu.Lock()
	w, ok := p.writers[conn]
	if !ok {
		w = &connWriter{
			ch:   make(chan []byte, writerBacklog),
			done: make(chan struct{}),
		}
		p.writers[conn] = w
		go p.drain(conn, w)
	}
	p.mu.Unlock()

	select {
	case w.ch <- data:
	case <-w.done:
	default:
		p.logger.Warnf("dropping %s event for %s: writer backlogged", evType, aud)
		go p.closeSlow(conn)
	}
}

// drain is the per-connection writer loop. Write failures are logged and the
// queue keeps draining so the rules engine never blocks on a dead socket;
// release ends the loop when the connection's read side exits.
func (p *writerPool) drain(conn *websocket.Conn, w *connWriter) {
	for {
		select {
		case <-w.done:
			return
		case data := <-w.ch:
			if err := p.write(conn, data); err != nil {
				p.logger.Warnf("ws write failed: %v", err)
			}
		}
	}
}

// release retires a connection's writer. Queued events not yet written are
// discarded along with it.
func (p *writerPool) release(conn *websocket.Conn) {
	p.mu.Lock()
	w, ok := p.writers[conn]
	if ok {
		delete(p.writers, conn)
	}
	p.mu.Unlock()
	if ok {
		close(w.done)
	}
}
