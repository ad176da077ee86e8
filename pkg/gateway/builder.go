package gateway

import (
	"context"
	"errors"
	"fmt"

	"plutus/pkg/api"
	"plutus/pkg/monitor"
)

// GatewayBuilder assembles a GatewayManager from pre-built parts and starts it.
type GatewayBuilder struct {
	gw       *GatewayManager
	monitor  monitor.Monitor
	opener   Opener
	channels []api.Channel
	routes   []api.Route
}

func NewGatewayBuilder() *GatewayBuilder {
	return &GatewayBuilder{
		gw: NewGatewayManager(),
	}
}

// WithMonitor injects a monitor, started during Build.
func (b *GatewayBuilder) WithMonitor(m monitor.Monitor) *GatewayBuilder {
	b.monitor = m
	return b
}

// WithRelay sets where channel connections are attached.
func (b *GatewayBuilder) WithRelay(o Opener) *GatewayBuilder {
	b.opener = o
	return b
}

// WithRoutes adds HTTP endpoints for HTTP-serving channels.
func (b *GatewayBuilder) WithRoutes(routes ...api.Route) *GatewayBuilder {
	b.routes = append(b.routes, routes...)
	return b
}

// WithChannel adds pre-built channels.
func (b *GatewayBuilder) WithChannel(channels ...api.Channel) *GatewayBuilder {
	b.channels = append(b.channels, channels...)
	return b
}

// Build wires everything and starts the monitor and the channels.
func (b *GatewayBuilder) Build(ctx context.Context) (*GatewayManager, error) {
	if b.opener == nil {
		return nil, errors.New("gateway: no relay configured")
	}
	b.gw.SetOpener(b.opener)
	b.gw.AddRoutes(b.routes...)

	if b.monitor != nil {
		b.gw.SetMonitor(b.monitor)
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	for _, c := range b.channels {
		b.gw.Register(c)
	}

	if err := b.gw.StartAll(ctx); err != nil {
		b.gw.StopAll()
		return nil, fmt.Errorf("failed to start channels: %w", err)
	}
	return b.gw, nil
}
