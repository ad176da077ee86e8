package api

import "time"

// Outbound event types.
const (
	EventMessage = "message"
	EventTools   = "tools"
	EventError   = "error"
)

// OutboundEvent is one frame sent to the client.
type OutboundEvent struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// InboundFrame is one frame received from the client.
type InboundFrame struct {
	Content *string `json:"content"`
}

// NewEvent stamps an event with the current time (ISO-8601, UTC).
func NewEvent(typ, content string) OutboundEvent {
	return OutboundEvent{
		Type:      typ,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Encode renders the event as JSON.
func (e OutboundEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
