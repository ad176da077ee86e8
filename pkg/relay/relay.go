// Package relay turns client connections into sequential agent turns and
// publishes each turn's events back to the client.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"plutus/pkg/agent"
	"plutus/pkg/api"
	"plutus/pkg/cards"
	"plutus/pkg/config"
	"plutus/pkg/llm"
	"plutus/pkg/provider"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Turner runs one turn at a time. *agent.Session implements it.
type Turner interface {
	Submit(ctx context.Context, text string) (<-chan agent.Event, error)
}

// SessionFactory creates the conversation backing a new connection.
type SessionFactory func(connID string) Turner

// Relay owns every open connection.
type Relay struct {
	ctx        context.Context
	newSession SessionFactory
	system     *config.SystemHolder

	mu         sync.RWMutex
	classifier *cards.Classifier
	conns      map[string]*Connection
}

// New creates a relay. Connection workers stop when ctx is done.
func New(ctx context.Context, factory SessionFactory, system *config.SystemHolder) (*Relay, error) {
	if system == nil {
		system = config.NewSystemHolder(nil)
	}
	r := &Relay{
		ctx:        ctx,
		newSession: factory,
		system:     system,
		conns:      make(map[string]*Connection),
	}
	if err := r.SetCardOrder(system.Get().CardOrder); err != nil {
		return nil, err
	}
	return r, nil
}

// SetCardOrder rebuilds the classifier. An empty order restores the default.
func (r *Relay) SetCardOrder(order []string) error {
	kinds := make([]cards.Kind, len(order))
	for i, k := range order {
		kinds[i] = cards.Kind(k)
	}
	c, err := cards.NewClassifier(kinds...)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.classifier = c
	r.mu.Unlock()
	return nil
}

func (r *Relay) currentClassifier() *cards.Classifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classifier
}

// Open attaches conn and starts its worker.
func (r *Relay) Open(conn api.Conn) api.Session {
	ctx, cancel := context.WithCancel(r.ctx)
	c := &Connection{
		relay:   r,
		conn:    conn,
		session: r.newSession(conn.ID()),
		queue:   make(chan inbound, r.system.Get().InboundQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.conns[conn.ID()] = c
	r.mu.Unlock()

	go c.work()
	slog.Info("Connection opened", "conn", conn.ID(), "wallet_session", conn.WalletSession())
	return c
}

// Len returns the number of open connections.
func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Relay) forget(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// inbound is one queued client message. A non-empty reject is reported as an
// error event in queue order instead of starting a turn.
type inbound struct {
	text   string
	reject string
}

// Connection is the per-client state machine: OPEN until Close or a failed
// send, then CLOSED.
type Connection struct {
	relay   *Relay
	conn    api.Conn
	session Turner
	queue   chan inbound

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// Deliver parses a raw {"content": "..."} frame and queues it.
func (c *Connection) Deliver(frame []byte) {
	var f api.InboundFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		c.enqueue(inbound{reject: "Invalid message format."})
		return
	}
	if f.Content == nil {
		c.enqueue(inbound{reject: "Message content is required."})
		return
	}
	c.DeliverText(*f.Content)
}

// DeliverText queues text as the next user turn.
func (c *Connection) DeliverText(text string) {
	if strings.TrimSpace(text) == "" {
		c.enqueue(inbound{reject: "Message content is required."})
		return
	}
	c.enqueue(inbound{text: text})
}

func (c *Connection) enqueue(in inbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.queue <- in:
	default:
		slog.Warn("Inbound queue full, dropping message", "conn", c.conn.ID())
		go c.send(api.EventError, "Too many pending messages, please wait for the current reply.")
	}
}

// Close moves the connection to CLOSED, drops queued messages and cancels
// the running turn.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.cancel()
	c.relay.forget(c.conn.ID())
	slog.Info("Connection closed", "conn", c.conn.ID())
}

// Done is closed once the worker has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) work() {
	defer close(c.done)
	for in := range c.queue {
		if c.ctx.Err() != nil {
			return
		}
		if in.reject != "" {
			c.send(api.EventError, in.reject)
			continue
		}
		c.turn(in.text)
	}
}

// turn runs one submit to completion, publishing its events in order.
func (c *Connection) turn(text string) {
	ctx := provider.WithSession(c.ctx, c.conn.WalletSession())
	ctx = context.WithValue(ctx, llm.DebugDirContextKey, c.conn.ID())

	events, err := c.session.Submit(ctx, text)
	if err != nil {
		slog.Error("Submit failed", "conn", c.conn.ID(), "error", err)
		c.send(api.EventError, fmt.Sprintf("Error processing message: %v", err))
		return
	}

	classifier := c.relay.currentClassifier()
	for ev := range events {
		switch ev.Kind {
		case agent.EventTextChunk:
			c.send(api.EventMessage, ev.Text)
		case agent.EventToolResult:
			env := classifier.ClassifyJSON([]byte(ev.Result.String()))
			b, err := json.Marshal(env)
			if err != nil {
				slog.Error("Failed to encode card", "conn", c.conn.ID(), "tool", ev.Call.Name, "error", err)
				continue
			}
			slog.Debug("Tool card", "conn", c.conn.ID(), "tool", ev.Call.Name, "kind", env.Kind)
			c.send(api.EventTools, string(b))
		case agent.EventFailed:
			c.send(api.EventError, fmt.Sprintf("Error processing message: %v", ev.Err))
		}
	}
}

// send writes one event. A transport failure closes the connection.
func (c *Connection) send(typ, content string) {
	if c.ctx.Err() != nil {
		return
	}
	if err := c.conn.Send(api.NewEvent(typ, content)); err != nil {
		slog.Warn("Send failed, closing connection", "conn", c.conn.ID(), "error", err)
		c.Close()
	}
}
