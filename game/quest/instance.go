package quest

import (
	"time"

	"github.com/kasuganosora/questengine/model"
)

// Status is the lifecycle state of an instance.
type Status string

const (
	StatusActive    Status = model.QuestStatusActive
	StatusCompleted Status = model.QuestStatusCompleted
	StatusFailed    Status = model.QuestStatusFailed
	StatusAbandoned Status = model.QuestStatusAbandoned
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAbandoned
}

// Instance is a character's run through a quest template.
type Instance struct {
	ID              string                      `json:"id"`
	CharacterID     string                      `json:"character_id"`
	TemplateID      string                      `json:"template_id"`
	Status          Status                      `json:"status"`
	CurrentBranchID string                      `json:"current_branch_id,omitempty"`
	CurrentNodeID   string                      `json:"current_node_id"`
	Progress        map[string]ProgressSnapshot `json:"progress"`
	Flags           Object                      `json:"flags"`
	StartedAt       time.Time                   `json:"started_at"`
	CompletedAt     *time.Time                  `json:"completed_at,omitempty"`
	Version         int64                       `json:"version"`
}

// ChoiceRecord logs one accepted choice.
type ChoiceRecord struct {
	NodeID     string    `json:"node_id"`
	OptionID   string    `json:"option_id"`
	NextNodeID string    `json:"next_node_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// DialogueState is the traversal history paired with an active instance.
type DialogueState struct {
	InstanceID    string         `json:"instance_id"`
	CurrentNodeID string         `json:"current_node_id"`
	VisitedNodes  []string       `json:"visited_nodes"`
	Choices       []ChoiceRecord `json:"choices"`
}

// advance moves the state to next, recording the node left behind once and
// appending the choice.
func (d *DialogueState) advance(nodeID, optionID, next string, at time.Time) {
	seen := false
	for _, id := range d.VisitedNodes {
		if id == nodeID {
			seen = true
			break
		}
	}
	if !seen {
		d.VisitedNodes = append(d.VisitedNodes, nodeID)
	}
	d.Choices = append(d.Choices, ChoiceRecord{
		NodeID:     nodeID,
		OptionID:   optionID,
		NextNodeID: next,
		Timestamp:  at,
	})
	d.CurrentNodeID = next
}
