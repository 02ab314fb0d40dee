package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	DetectionCreated   Type = "detection.created"
	DetectionCorrected Type = "detection.corrected"
	SongCreated        Type = "song.created"
	ChannelUpdated     Type = "channel.updated"
)

// Event is a domain change published on the bus. ChannelID scopes the event
// to a broadcast channel room; it is empty for catalogue-wide events.
type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	ChannelID  string          `json:"channel_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data,omitempty"`

	// Origin identifies the publishing bus so relayed copies are not
	// delivered twice on the replica that produced them.
	Origin string `json:"origin,omitempty"`
}

// New builds an event with data encoded as JSON.
func New(t Type, channelID string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		ChannelID:  channelID,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}, nil
}
