package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taskdeck/taskdeck/internal/syncstore"
)

// RealtimeConfig carries push-channel connection settings.
type RealtimeConfig struct {
	URL    string
	APIKey string
	// TokenFunc is consulted on every dial, so reconnects authenticate
	// as the current actor after a token swap. Client.Token fits here.
	// Token is the static fallback when TokenFunc is nil.
	TokenFunc        func() string
	Token            string
	HandshakeTimeout time.Duration
	ReconnectDelay   time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	Logger           *slog.Logger
}

func (cfg RealtimeConfig) withDefaults() RealtimeConfig {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.TokenFunc == nil {
		token := cfg.Token
		cfg.TokenFunc = func() string { return token }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// frame is the wire format of the push channel. Client frames carry
// action+topic; server frames carry topic+type+record.
type frame struct {
	Action string          `json:"action,omitempty"`
	Topic  string          `json:"topic"`
	Type   string          `json:"type,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
}

type realtimeHandler func(syncstore.EventType, json.RawMessage)

// Realtime maintains one websocket connection to the gateway push
// channel and fans events out to per-collection subscribers in delivery
// order. The connection is re-established with a fixed delay after
// failures until Close is called.
type Realtime struct {
	cfg    RealtimeConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	subs    map[string]map[int]realtimeHandler
	nextID  int
}

// NewRealtime starts the push-channel run loop. The channel lives until
// ctx is cancelled or Close is called.
func NewRealtime(ctx context.Context, cfg RealtimeConfig) *Realtime {
	runCtx, cancel := context.WithCancel(ctx)
	r := &Realtime{
		cfg:    cfg.withDefaults(),
		ctx:    runCtx,
		cancel: cancel,
		subs:   make(map[string]map[int]realtimeHandler),
	}
	go r.run()
	return r
}

// Subscribe registers a change-event handler for one collection topic
// and returns an unsubscribe func. The subscription survives reconnects.
func (r *Realtime) Subscribe(topic string, fn realtimeHandler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	handlers, ok := r.subs[topic]
	if !ok {
		handlers = make(map[int]realtimeHandler)
		r.subs[topic] = handlers
	}
	handlers[id] = fn
	first := len(handlers) == 1
	conn := r.conn
	r.mu.Unlock()

	if first && conn != nil {
		r.writeFrame(conn, frame{Action: "subscribe", Topic: topic})
	}

	return func() {
		r.mu.Lock()
		handlers, ok := r.subs[topic]
		if ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(r.subs, topic)
			}
		}
		last := !ok || len(handlers) == 0
		conn := r.conn
		r.mu.Unlock()
		if last && conn != nil {
			r.writeFrame(conn, frame{Action: "unsubscribe", Topic: topic})
		}
	}
}

// Close tears down the push channel.
func (r *Realtime) Close() {
	r.cancel()
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (r *Realtime) run() {
	for {
		if r.ctx.Err() != nil {
			return
		}
		if err := r.connectAndRead(); err != nil && r.ctx.Err() == nil {
			r.cfg.Logger.Warn("push channel disconnected",
				slog.String("url", r.cfg.URL), slog.Any("error", err))
		}
		select {
		case <-r.ctx.Done():
			return
		case <-time.After(r.cfg.ReconnectDelay):
		}
	}
}

func (r *Realtime) connectAndRead() error {
	dialer := &websocket.Dialer{HandshakeTimeout: r.cfg.HandshakeTimeout}
	header := http.Header{}
	if r.cfg.APIKey != "" {
		header.Set("X-Api-Key", r.cfg.APIKey)
	}
	if token := r.cfg.TokenFunc(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := dialer.DialContext(r.ctx, r.cfg.URL, header)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	r.mu.Lock()
	r.conn = conn
	topics := make([]string, 0, len(r.subs))
	for topic := range r.subs {
		topics = append(topics, topic)
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
	}()

	for _, topic := range topics {
		if !r.writeFrame(conn, frame{Action: "subscribe", Topic: topic}) {
			return nil
		}
	}

	pingCtx, stopPing := context.WithCancel(r.ctx)
	defer stopPing()
	go r.pingLoop(pingCtx, conn)

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		r.dispatch(f)
	}
}

func (r *Realtime) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(r.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			r.writeMu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// dispatch delivers a server frame to current topic subscribers.
// Handlers run on the read loop, preserving gateway delivery order.
func (r *Realtime) dispatch(f frame) {
	switch syncstore.EventType(f.Type) {
	case syncstore.EventInsert, syncstore.EventUpdate, syncstore.EventDelete:
	default:
		return
	}
	r.mu.Lock()
	handlers := make([]realtimeHandler, 0, len(r.subs[f.Topic]))
	for _, fn := range r.subs[f.Topic] {
		handlers = append(handlers, fn)
	}
	r.mu.Unlock()
	for _, fn := range handlers {
		fn(syncstore.EventType(f.Type), f.Record)
	}
}

func (r *Realtime) writeFrame(conn *websocket.Conn, f frame) bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(r.cfg.WriteTimeout))
	if err := conn.WriteJSON(f); err != nil {
		_ = conn.Close()
		return false
	}
	return true
}
