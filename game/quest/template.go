package quest

import (
	"encoding/json"
	"fmt"
)

// QuestType classifies a template.
type QuestType string

const (
	QuestTypeMain     QuestType = "main"
	QuestTypeSide     QuestType = "side"
	QuestTypeContract QuestType = "contract"
)

// ObjectiveType classifies an objective.
type ObjectiveType string

const (
	ObjectiveLocation ObjectiveType = "location"
	ObjectiveKill     ObjectiveType = "kill"
	ObjectiveCollect  ObjectiveType = "collect"
	ObjectiveTalk     ObjectiveType = "talk"
	ObjectiveInteract ObjectiveType = "interact"
)

// Objective is one tracked goal of a quest.
type Objective struct {
	ID          string        `json:"id" yaml:"id"`
	Type        ObjectiveType `json:"type" yaml:"type"`
	Description string        `json:"description,omitempty" yaml:"description"`
	Target      int           `json:"target" yaml:"target"`
	Optional    bool          `json:"optional,omitempty" yaml:"optional"`
}

// AttributeRequirement gates an option on flags.attributes[Attribute].
type AttributeRequirement struct {
	Attribute string `json:"attribute" yaml:"attribute"`
	MinValue  int    `json:"min_value" yaml:"min_value"`
}

// SkillCheckSpec declares a d20 check.
type SkillCheckSpec struct {
	Skill      string `json:"skill" yaml:"skill"`
	Difficulty int    `json:"difficulty" yaml:"difficulty"`
	Advantage  bool   `json:"advantage,omitempty" yaml:"advantage"`
}

type RewardItem struct {
	ItemID   string `json:"item_id" yaml:"item_id"`
	Quantity int    `json:"quantity" yaml:"quantity"`
}

// RewardFormula is the template-declared reward payout.
type RewardFormula struct {
	Experience int            `json:"experience" yaml:"experience"`
	Currency   int            `json:"currency" yaml:"currency"`
	Items      []RewardItem   `json:"items,omitempty" yaml:"items"`
	Reputation map[string]int `json:"reputation,omitempty" yaml:"reputation"`
}

type Branch struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

type Ending struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	BranchID    string `json:"branch_id,omitempty" yaml:"branch_id"`
}

// Option is a selectable choice within a node.
type Option struct {
	ID                string
	Text              string
	RequiredAttribute *AttributeRequirement
	Conditions        Object
	SkillCheck        *SkillCheckSpec
	LeadsTo           string
	BranchID          string
	ShowWhenLocked    *bool
	Consequence       string
	Effects           []Effect
}

// HiddenWhenLocked reports whether the option disappears instead of being
// shown as unavailable.
func (o *Option) HiddenWhenLocked() bool {
	return o.ShowWhenLocked != nil && !*o.ShowWhenLocked
}

// Node is one step of the dialogue graph.
type Node struct {
	ID      string
	Speaker string
	Text    string
	Options []Option
}

// Option returns the option with the given id.
func (n *Node) Option(id string) (*Option, bool) {
	for i := range n.Options {
		if n.Options[i].ID == id {
			return &n.Options[i], true
		}
	}
	return nil, false
}

// Template is a compiled, immutable quest definition. Share it freely between
// goroutines; nothing mutates it after Compile.
type Template struct {
	ID                string
	Name              string
	Description       string
	Type              QuestType
	Level             int
	Objectives        []Objective
	StartNodeID       string
	StartBranchID     string
	Nodes             map[string]*Node
	Rewards           RewardFormula
	UnlockedQuests    []string
	ReputationChanges map[string]int
	Branches          []Branch
	Endings           []Ending
}

// Node looks up a node of the dialogue graph.
func (t *Template) Node(id string) (*Node, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// Objective looks up a declared objective.
func (t *Template) Objective(id string) (*Objective, bool) {
	for i := range t.Objectives {
		if t.Objectives[i].ID == id {
			return &t.Objectives[i], true
		}
	}
	return nil, false
}

// ---- authoring shape ----

// TemplateDocument is the on-disk and in-database shape of a template. YAML
// content files and the JSON definition column both decode into it.
type TemplateDocument struct {
	ID                string                   `json:"id" yaml:"id"`
	Name              string                   `json:"name" yaml:"name"`
	Description       string                   `json:"description,omitempty" yaml:"description"`
	Type              QuestType                `json:"type,omitempty" yaml:"type"`
	Level             int                      `json:"level,omitempty" yaml:"level"`
	Objectives        []Objective              `json:"objectives,omitempty" yaml:"objectives"`
	StartNode         string                   `json:"start_node" yaml:"start_node"`
	StartBranch       string                   `json:"start_branch,omitempty" yaml:"start_branch"`
	Nodes             map[string]*NodeDocument `json:"nodes" yaml:"nodes"`
	Rewards           RewardFormula            `json:"rewards" yaml:"rewards"`
	UnlockedQuests    []string                 `json:"unlocked_quests,omitempty" yaml:"unlocked_quests"`
	ReputationChanges map[string]int           `json:"reputation_changes,omitempty" yaml:"reputation_changes"`
	Branches          []Branch                 `json:"branches,omitempty" yaml:"branches"`
	Endings           []Ending                 `json:"endings,omitempty" yaml:"endings"`
}

type NodeDocument struct {
	Speaker string           `json:"speaker,omitempty" yaml:"speaker"`
	Text    string           `json:"text" yaml:"text"`
	Options []OptionDocument `json:"options,omitempty" yaml:"options"`
}

type OptionDocument struct {
	ID                string                `json:"id" yaml:"id"`
	Text              string                `json:"text" yaml:"text"`
	RequiredAttribute *AttributeRequirement `json:"required_attribute,omitempty" yaml:"required_attribute"`
	Conditions        Object                `json:"conditions,omitempty" yaml:"conditions"`
	SkillCheck        *SkillCheckSpec       `json:"skill_check,omitempty" yaml:"skill_check"`
	LeadsTo           string                `json:"leads_to,omitempty" yaml:"leads_to"`
	BranchID          string                `json:"branch_id,omitempty" yaml:"branch_id"`
	ShowWhenLocked    *bool                 `json:"show_when_locked,omitempty" yaml:"show_when_locked"`
	Consequence       string                `json:"consequence,omitempty" yaml:"consequence"`
	Effects           EffectsDocument       `json:"effects,omitempty" yaml:"effects"`
}

// ParseTemplateJSON decodes and compiles a stored definition.
func ParseTemplateJSON(data []byte) (*Template, error) {
	var doc TemplateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode template: %v", ErrInvalidContent, err)
	}
	return doc.Compile()
}

func contentErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidContent, fmt.Sprintf(format, args...))
}

// Compile validates the document and builds the immutable Template.
// Everything that can be checked statically is checked here so the engine
// never meets a malformed effect at runtime.
func (d *TemplateDocument) Compile() (*Template, error) {
	if d.ID == "" {
		return nil, contentErrorf("template id is required")
	}
	if len(d.Nodes) == 0 {
		return nil, contentErrorf("template %s: no dialogue nodes", d.ID)
	}
	if _, ok := d.Nodes[d.StartNode]; !ok {
		return nil, contentErrorf("template %s: start node %q not found", d.ID, d.StartNode)
	}
	switch d.Type {
	case "", QuestTypeMain, QuestTypeSide, QuestTypeContract:
	default:
		return nil, contentErrorf("template %s: unknown quest type %q", d.ID, d.Type)
	}

	t := &Template{
		ID:                d.ID,
		Name:              d.Name,
		Description:       d.Description,
		Type:              d.Type,
		Level:             d.Level,
		StartNodeID:       d.StartNode,
		StartBranchID:     d.StartBranch,
		Nodes:             make(map[string]*Node, len(d.Nodes)),
		Rewards:           d.Rewards,
		UnlockedQuests:    append([]string(nil), d.UnlockedQuests...),
		ReputationChanges: d.ReputationChanges,
		Branches:          append([]Branch(nil), d.Branches...),
		Endings:           append([]Ending(nil), d.Endings...),
	}
	if t.Type == "" {
		t.Type = QuestTypeSide
	}

	objectives := make(map[string]bool, len(d.Objectives))
	for _, obj := range d.Objectives {
		if obj.ID == "" {
			return nil, contentErrorf("template %s: objective without id", d.ID)
		}
		if objectives[obj.ID] {
			return nil, contentErrorf("template %s: duplicate objective %q", d.ID, obj.ID)
		}
		switch obj.Type {
		case ObjectiveLocation, ObjectiveKill, ObjectiveCollect, ObjectiveTalk, ObjectiveInteract:
		default:
			return nil, contentErrorf("template %s: objective %q has unknown type %q", d.ID, obj.ID, obj.Type)
		}
		if obj.Target < 1 {
			obj.Target = 1
		}
		objectives[obj.ID] = true
		t.Objectives = append(t.Objectives, obj)
	}

	branches := make(map[string]bool, len(d.Branches))
	for _, b := range d.Branches {
		branches[b.ID] = true
	}

	for id, nd := range d.Nodes {
		if nd == nil {
			return nil, contentErrorf("template %s: node %q is empty", d.ID, id)
		}
		node := &Node{ID: id, Speaker: nd.Speaker, Text: nd.Text}
		seen := make(map[string]bool, len(nd.Options))
		for _, od := range nd.Options {
			where := fmt.Sprintf("template %s node %s option %s", d.ID, id, od.ID)
			if od.ID == "" {
				return nil, contentErrorf("template %s node %s: option without id", d.ID, id)
			}
			if seen[od.ID] {
				return nil, contentErrorf("%s: duplicate option id", where)
			}
			seen[od.ID] = true
			if od.LeadsTo != "" {
				if _, ok := d.Nodes[od.LeadsTo]; !ok {
					return nil, contentErrorf("%s: leads to unknown node %q", where, od.LeadsTo)
				}
			}
			if od.BranchID != "" && len(branches) > 0 && !branches[od.BranchID] {
				return nil, contentErrorf("%s: unknown branch %q", where, od.BranchID)
			}
			if od.RequiredAttribute != nil && od.RequiredAttribute.Attribute == "" {
				return nil, contentErrorf("%s: required_attribute without attribute", where)
			}
			if od.SkillCheck != nil && od.SkillCheck.Skill == "" {
				return nil, contentErrorf("%s: skill_check without skill", where)
			}
			for path := range od.Conditions {
				if path == "" {
					return nil, contentErrorf("%s: empty condition path", where)
				}
			}
			for objID := range od.Effects.Progress {
				if len(objectives) > 0 && !objectives[objID] {
					return nil, contentErrorf("%s: progress effect on undeclared objective %q", where, objID)
				}
			}
			effects, err := compileEffects(od.Effects)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", where, err)
			}
			node.Options = append(node.Options, Option{
				ID:                od.ID,
				Text:              od.Text,
				RequiredAttribute: od.RequiredAttribute,
				Conditions:        od.Conditions.Clone(),
				SkillCheck:        od.SkillCheck,
				LeadsTo:           od.LeadsTo,
				BranchID:          od.BranchID,
				ShowWhenLocked:    od.ShowWhenLocked,
				Consequence:       od.Consequence,
				Effects:           effects,
			})
		}
		t.Nodes[id] = node
	}
	return t, nil
}
