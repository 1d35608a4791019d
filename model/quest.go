package model

import (
	"time"

	"gorm.io/datatypes"
)

// Quest instance statuses as stored in the status column.
const (
	QuestStatusActive    = "ACTIVE"
	QuestStatusCompleted = "COMPLETED"
	QuestStatusFailed    = "FAILED"
	QuestStatusAbandoned = "ABANDONED"
)

// QuestTemplateRecord stores one authored quest definition.
// Definition holds the full template document as JSON.
type QuestTemplateRecord struct {
	ID         string         `gorm:"primaryKey;size:64" json:"id"`
	Name       string         `gorm:"size:128;not null" json:"name"`
	Definition datatypes.JSON `gorm:"not null" json:"definition"`
	Checksum   string         `gorm:"size:64" json:"checksum"`
	Revision   int            `gorm:"default:1" json:"revision"`
	IsActive   bool           `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuestInstance is one character's run through a quest template.
// Progress and flags live in State as a versioned JSON envelope.
type QuestInstance struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	CharacterID     string         `gorm:"index:idx_quest_char_tpl_status;size:64;not null" json:"character_id"`
	TemplateID      string         `gorm:"index:idx_quest_char_tpl_status;size:64;not null" json:"template_id"`
	Status          string         `gorm:"index:idx_quest_char_tpl_status;size:16;not null" json:"status"`
	CurrentBranchID string         `gorm:"size:64" json:"current_branch_id"`
	CurrentNodeID   string         `gorm:"size:64" json:"current_node_id"`
	StateVersion    int            `gorm:"not null;default:1" json:"state_version"`
	State           datatypes.JSON `json:"state"`
	Version         int64          `gorm:"not null;default:1" json:"version"`
	StartedAt       time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuestDialogueState tracks dialogue traversal for an ACTIVE instance.
type QuestDialogueState struct {
	InstanceID    string         `gorm:"primaryKey;size:36" json:"instance_id"`
	CurrentNodeID string         `gorm:"size:64;not null" json:"current_node_id"`
	StateVersion  int            `gorm:"not null;default:1" json:"state_version"`
	History       datatypes.JSON `json:"history"` // visited nodes + choice log
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// SkillCheckRecord is the audit row for a dialogue-gated skill check.
type SkillCheckRecord struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	InstanceID      string    `gorm:"index:idx_skill_check_node;size:36;not null" json:"instance_id"`
	NodeID          string    `gorm:"index:idx_skill_check_node;size:64;not null" json:"node_id"`
	OptionID        string    `gorm:"size:64" json:"option_id"`
	Skill           string    `gorm:"size:64;not null" json:"skill"`
	Difficulty      int       `json:"difficulty"`
	Roll            int       `json:"roll"`
	SecondaryRoll   *int      `json:"secondary_roll"`
	Modifier        int       `json:"modifier"`
	Total           int       `json:"total"`
	Success         bool      `json:"success"`
	CriticalSuccess bool      `json:"critical_success"`
	CriticalFailure bool      `json:"critical_failure"`
	AdvantageUsed   bool      `json:"advantage_used"`
	Seed            int64     `json:"seed"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CharacterAttribute is a read-only attribute or skill modifier value fed
// into a quest's flags when the quest starts.
type CharacterAttribute struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CharacterID string `gorm:"uniqueIndex:idx_char_attr;size:64;not null" json:"character_id"`
	Kind        string `gorm:"uniqueIndex:idx_char_attr;size:16;not null" json:"kind"` // attribute | skill_modifier
	Name        string `gorm:"uniqueIndex:idx_char_attr;size:64;not null" json:"name"`
	Value       int    `gorm:"not null" json:"value"`
}

// Character attribute kinds.
const (
	AttributeKindAttribute     = "attribute"
	AttributeKindSkillModifier = "skill_modifier"
)
