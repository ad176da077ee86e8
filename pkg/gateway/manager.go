// Package gateway assembles the channels around the relay and mirrors their
// traffic to the monitor.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"plutus/pkg/api"
	"plutus/pkg/monitor"
)

// Opener attaches client connections. *relay.Relay implements it.
type Opener interface {
	Open(conn api.Conn) api.Session
}

// GatewayManager owns the channels and implements api.ChannelHost for them.
type GatewayManager struct {
	channels map[string]api.Channel
	opener   Opener
	routes   []api.Route
	monitor  monitor.Monitor
	mu       sync.RWMutex
}

func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]api.Channel),
	}
}

// SetOpener sets where connections are attached.
func (g *GatewayManager) SetOpener(o Opener) {
	g.opener = o
}

// SetMonitor sets the traffic observer.
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// AddRoutes appends HTTP endpoints served by HTTP channels.
func (g *GatewayManager) AddRoutes(routes ...api.Route) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes = append(g.routes, routes...)
}

// Register adds a channel; a channel with the same ID is replaced.
func (g *GatewayManager) Register(c api.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel returns a registered channel.
func (g *GatewayManager) GetChannel(id string) (api.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

func (g *GatewayManager) sortedIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.channels))
	for id := range g.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartAll starts every channel in ID order.
func (g *GatewayManager) StartAll(ctx context.Context) error {
	for _, id := range g.sortedIDs() {
		c, _ := g.GetChannel(id)
		slog.Info("Starting channel", "channel", id)
		if err := c.Start(ctx, g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll stops every channel, logging failures.
func (g *GatewayManager) StopAll() {
	for _, id := range g.sortedIDs() {
		c, _ := g.GetChannel(id)
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
	if g.monitor != nil {
		if err := g.monitor.Stop(); err != nil {
			slog.Warn("Error stopping monitor", "error", err)
		}
	}
}

// Routes implements api.ChannelHost.
func (g *GatewayManager) Routes() []api.Route {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]api.Route(nil), g.routes...)
}

// Open implements api.ChannelHost. channelID tags the connection in the
// monitor and is taken from the connection when it reports one.
func (g *GatewayManager) Open(conn api.Conn) api.Session {
	channelID := "unknown"
	if tagged, ok := conn.(interface{ ChannelID() string }); ok {
		channelID = tagged.ChannelID()
	}
	if g.monitor == nil {
		return g.opener.Open(conn)
	}
	mc := &monitoredConn{Conn: conn, channelID: channelID, monitor: g.monitor}
	return &monitoredSession{
		Session:   g.opener.Open(mc),
		conn:      mc,
		channelID: channelID,
		monitor:   g.monitor,
	}
}

type monitoredConn struct {
	api.Conn
	channelID string
	monitor   monitor.Monitor
}

func (c *monitoredConn) Send(ev api.OutboundEvent) error {
	c.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp: time.Now(),
		Direction: monitor.DirectionOut,
		ChannelID: c.channelID,
		ConnID:    c.ID(),
		Type:      ev.Type,
		Content:   ev.Content,
	})
	return c.Conn.Send(ev)
}

type monitoredSession struct {
	api.Session
	conn      api.Conn
	channelID string
	monitor   monitor.Monitor
}

func (s *monitoredSession) observe(content string) {
	s.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp: time.Now(),
		Direction: monitor.DirectionIn,
		ChannelID: s.channelID,
		ConnID:    s.conn.ID(),
		Content:   content,
	})
}

func (s *monitoredSession) Deliver(frame []byte) {
	s.observe(string(frame))
	s.Session.Deliver(frame)
}

func (s *monitoredSession) DeliverText(text string) {
	s.observe(text)
	s.Session.DeliverText(text)
}
