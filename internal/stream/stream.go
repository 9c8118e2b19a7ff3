// Package stream exposes the engine's event topics over WebSocket so
// external consumers (indexers, dashboards) can follow swaps and
// lifecycle changes in real time.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lumen-amm/lumen/internal/bus"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Server broadcasts bus messages to connected WebSocket clients.
// Each client subscribes to all topics; filtering happens client-side
// on the topic field of the envelope.
type Server struct {
	bus    *bus.MemoryBus
	buffer int

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.RWMutex
	clients map[*client]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan envelope
}

// envelope is the wire format: the topic plus the raw event payload.
type envelope struct {
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Timestamp int64           `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// New creates a stream server fanning out from the given bus.
func New(b *bus.MemoryBus, buffer int) *Server {
	if buffer <= 0 {
		buffer = 256
	}
	return &Server{
		bus:    b,
		buffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Run subscribes to the bus topics and starts the fan-out goroutines
// without opening a listener. Callers that mount Handler on their own
// server use this directly.
func (s *Server) Run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	topics := []string{
		bus.TopicSwaps,
		bus.TopicLifecycle,
		bus.TopicClaims,
		bus.TopicReferrals,
		bus.TopicAdmin,
	}
	for _, topic := range topics {
		ch := s.bus.Subscribe(topic, s.buffer)
		s.wg.Add(1)
		go s.pump(ctx, ch)
	}
}

// Start begins consuming bus topics and listening on addr. It returns
// once the listener goroutine is running.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpSrv = &http.Server{Addr: addr, Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", addr).Msg("Event stream listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Event stream server error")
		}
	}()
	return nil
}

// Handler returns the HTTP handler without starting a listener. Used by
// tests and by callers that mount the stream on an existing server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Stop shuts the listener down and disconnects all clients.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// ClientCount reports the number of connected subscribers.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) pump(ctx context.Context, ch <-chan bus.Message) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(msg)
		}
	}
}

func (s *Server) broadcast(msg bus.Message) {
	env := envelope{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Timestamp: msg.Timestamp.UnixMilli(),
		Payload:   json.RawMessage(msg.Value),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- env:
		default:
			// Slow consumer, drop the message rather than block the fan-out.
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WS upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan envelope, s.buffer),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Stream client connected")

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeTimeout))
				c.conn.Close()
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// readLoop drains inbound frames so control messages are processed and
// detects client disconnects.
func (s *Server) readLoop(c *client) {
	defer func() {
		s.mu.Lock()
		if _, ok := s.clients[c]; ok {
			close(c.send)
			delete(s.clients, c)
		}
		s.mu.Unlock()
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
