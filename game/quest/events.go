package quest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kasuganosora/questengine/cache"
)

// Lifecycle event types.
const (
	EventStarted          = "quest.started"
	EventDialogueAdvanced = "quest.dialogue_advanced"
	EventCompleted        = "quest.completed"
	EventAbandoned        = "quest.abandoned"
	EventFailed           = "quest.failed"
)

// Event is a quest lifecycle notification.
type Event struct {
	Type        string      `json:"type"`
	InstanceID  string      `json:"instance_id"`
	CharacterID string      `json:"character_id"`
	TemplateID  string      `json:"template_id"`
	NodeID      string      `json:"node_id,omitempty"`
	At          time.Time   `json:"at"`
	Data        interface{} `json:"data,omitempty"`
}

// EventPublisher delivers lifecycle events. Failures are reported but never
// roll back the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PubSubPublisher publishes events as JSON on <prefix>:<characterID>.
type PubSubPublisher struct {
	ps     cache.PubSub
	prefix string
}

func NewPubSubPublisher(ps cache.PubSub, prefix string) *PubSubPublisher {
	if prefix == "" {
		prefix = "quest:events"
	}
	return &PubSubPublisher{ps: ps, prefix: prefix}
}

// Channel returns the channel carrying a character's events.
func (p *PubSubPublisher) Channel(characterID string) string {
	return EventChannel(p.prefix, characterID)
}

func (p *PubSubPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.ps.Publish(ctx, p.Channel(ev.CharacterID), string(payload))
}

// EventChannel builds the per-character channel name.
func EventChannel(prefix, characterID string) string {
	return prefix + ":" + characterID
}
