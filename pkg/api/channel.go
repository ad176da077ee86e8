package api

import (
	"context"
	"net/http"
)

// Channel is a transport that owns client connections.
type Channel interface {
	ID() string
	// Start begins accepting connections and returns once the channel is
	// serving. Connections are attached through host.
	Start(ctx context.Context, host ChannelHost) error
	Stop() error
}

// ChannelHost is what the gateway exposes to channels.
type ChannelHost interface {
	// Open attaches a new client connection to the relay.
	Open(conn Conn) Session
	// Routes lists the HTTP endpoints a channel serving HTTP must mount.
	Routes() []Route
}

// Route is one HTTP endpoint. Pattern uses http.ServeMux syntax
// (e.g. "POST /api/set-provider").
type Route struct {
	Pattern string
	Handler http.Handler
}

// Conn is one client connection as seen by the relay.
type Conn interface {
	// ID is unique per connection.
	ID() string
	// WalletSession selects the provider slot the connection's tools read.
	WalletSession() string
	// Send writes one event to the peer. Safe for concurrent use.
	Send(ev OutboundEvent) error
}

// Session is the relay side of a connection.
type Session interface {
	// Deliver queues a raw inbound frame ({"content": "..."}).
	Deliver(frame []byte)
	// DeliverText queues plain text.
	DeliverText(text string)
	// Close releases the connection. Idempotent.
	Close()
}
