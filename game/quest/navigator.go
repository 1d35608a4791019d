package quest

import "fmt"

// OptionView is an option as presented to the player.
type OptionView struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Available     bool   `json:"available"`
	RequiresSkill string `json:"requires_skill,omitempty"`
	Consequence   string `json:"consequence,omitempty"`
}

// NodeView is a rendered dialogue node.
type NodeView struct {
	NodeID  string       `json:"node_id"`
	Speaker string       `json:"speaker,omitempty"`
	Text    string       `json:"text"`
	Options []OptionView `json:"options"`
}

// resolveNode finds a node the instance points at. A miss means the stored
// state and the template disagree, which is a data integrity problem.
func resolveNode(t *Template, nodeID string) (*Node, error) {
	node, ok := t.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %w: template %s has no node %q", ErrDataIntegrity, ErrNotFound, t.ID, nodeID)
	}
	return node, nil
}

// RenderNode evaluates option visibility against flags. Options that are
// locked and marked show_when_locked=false are left out.
func RenderNode(n *Node, flags Object) NodeView {
	view := NodeView{
		NodeID:  n.ID,
		Speaker: n.Speaker,
		Text:    n.Text,
		Options: make([]OptionView, 0, len(n.Options)),
	}
	for i := range n.Options {
		opt := &n.Options[i]
		available := IsOptionAvailable(opt, flags)
		if !available && opt.HiddenWhenLocked() {
			continue
		}
		ov := OptionView{
			ID:          opt.ID,
			Text:        opt.Text,
			Available:   available,
			Consequence: opt.Consequence,
		}
		if opt.SkillCheck != nil {
			ov.RequiresSkill = opt.SkillCheck.Skill
		}
		view.Options = append(view.Options, ov)
	}
	return view
}
