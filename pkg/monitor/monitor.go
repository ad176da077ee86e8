package monitor

import "time"

// Traffic directions.
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// MonitorMessage is one unit of traffic between a client and the relay.
type MonitorMessage struct {
	Timestamp time.Time
	Direction string // DirectionIn or DirectionOut
	ChannelID string
	ConnID    string
	Type      string // outbound event type; empty for inbound
	Content   string
}

// Monitor observes relay traffic.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}
