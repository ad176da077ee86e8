package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultSession is the slot used by callers that do not name a session.
// It reproduces the single wallet shared by every connection.
const DefaultSession = "global"

var (
	ErrInvalidProvider = errors.New("invalid provider")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrTimeout         = errors.New("timed out waiting for wallet")
)

// Handle is the wallet provider object pushed by the client, kept as raw JSON.
// The relay never interprets it beyond the optional endpoint hints in Endpoint.
type Handle jsoniter.RawMessage

// IsEmpty reports whether the handle carries no usable value.
func (h Handle) IsEmpty() bool {
	switch string(bytes.TrimSpace(h)) {
	case "", "null", `""`, "false", "0":
		return true
	}
	return false
}

// Endpoint extracts the optional rpcUrl and chainId hints from the handle.
// Non-object handles yield zero values.
func (h Handle) Endpoint() (rpcURL string, chainID int64) {
	var hint struct {
		RPCURL  string `json:"rpcUrl"`
		ChainID int64  `json:"chainId"`
	}
	if err := json.Unmarshal(h, &hint); err != nil {
		return "", 0
	}
	return hint.RPCURL, hint.ChainID
}

// cell is a write-many, wait-until-first-write value.
type cell[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	ready chan struct{}
}

func newCell[T any]() *cell[T] {
	return &cell[T]{ready: make(chan struct{})}
}

func (c *cell[T]) store(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	if !c.set {
		c.set = true
		close(c.ready)
	}
}

func (c *cell[T]) current() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *cell[T]) load(ctx context.Context) (T, error) {
	select {
	case <-c.ready:
		return c.current(), nil
	default:
	}

	select {
	case <-c.ready:
		return c.current(), nil
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

// Slot holds the wallet provider and address of one session.
type Slot struct {
	provider *cell[Handle]
	address  *cell[string]
}

func newSlot() *Slot {
	return &Slot{
		provider: newCell[Handle](),
		address:  newCell[string](),
	}
}

// Registry maps session ids to wallet slots. Slots are created lazily by
// either a writer or a reader and are never removed.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*Slot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*Slot)}
}

func (r *Registry) slot(session string) *Slot {
	if session == "" {
		session = DefaultSession
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[session]
	if !ok {
		s = newSlot()
		r.slots[session] = s
	}
	return s
}

// SetProvider stores the handle for the session and releases every reader
// waiting on it. Later calls overwrite the stored value.
func (r *Registry) SetProvider(session string, h Handle) error {
	if h.IsEmpty() {
		return ErrInvalidProvider
	}
	cp := make(Handle, len(h))
	copy(cp, h)
	r.slot(session).provider.store(cp)
	return nil
}

// SetAddress stores the user address for the session.
func (r *Registry) SetAddress(session, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrInvalidAddress
	}
	r.slot(session).address.store(address)
	return nil
}

// Provider returns the session's handle, waiting until one is set or ctx ends.
func (r *Registry) Provider(ctx context.Context, session string) (Handle, error) {
	return r.slot(session).provider.load(ctx)
}

// Address returns the session's address, waiting until one is set or ctx ends.
func (r *Registry) Address(ctx context.Context, session string) (string, error) {
	return r.slot(session).address.load(ctx)
}

type sessionKey struct{}

// WithSession attaches the wallet session id to ctx.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFrom returns the wallet session id carried by ctx, or DefaultSession.
func SessionFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sessionKey{}).(string); ok && s != "" {
		return s
	}
	return DefaultSession
}
