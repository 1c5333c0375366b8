package notify

import (
	"encoding/json"
)

// Notifier delivers an event to a live client session. Implementations must
// not block the caller for long and must never fail it: an unknown channel
// or a transport error is dropped.
type Notifier interface {
	Notify(channelID, event string, payload any)
}

// NullNotifier discards every event
type NullNotifier struct{}

func (NullNotifier) Notify(string, string, any) {}

// Message is the envelope carried between processes and written to SSE clients
type Message struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func newMessage(channelID, event string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Channel: channelID, Event: event, Data: raw}, nil
}

// Multi fans an event out to several notifiers in order
type Multi []Notifier

func (m Multi) Notify(channelID, event string, payload any) {
	for _, n := range m {
		n.Notify(channelID, event, payload)
	}
}
