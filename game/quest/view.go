package quest

import (
	"sort"
	"time"
)

// ObjectiveView is one objective with its tracked progress.
type ObjectiveView struct {
	ID          string        `json:"id"`
	Type        ObjectiveType `json:"type"`
	Description string        `json:"description,omitempty"`
	Current     int           `json:"current"`
	Target      int           `json:"target"`
	Completed   bool          `json:"completed"`
	Optional    bool          `json:"optional,omitempty"`
}

// QuestProgress is the quest-log view of an active instance.
type QuestProgress struct {
	InstanceID      string          `json:"instance_id"`
	TemplateID      string          `json:"template_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Type            QuestType       `json:"type"`
	Level           int             `json:"level"`
	Status          Status          `json:"status"`
	CurrentBranchID string          `json:"current_branch_id,omitempty"`
	CurrentNodeID   string          `json:"current_node_id"`
	StartedAt       time.Time       `json:"started_at"`
	Objectives      []ObjectiveView `json:"objectives"`
	Rewards         Rewards         `json:"rewards"`
}

// buildProgress joins an instance with its template. Objectives follow the
// template's declared order; progress the template does not declare is
// appended afterwards in key order.
func buildProgress(inst *Instance, t *Template) QuestProgress {
	qp := QuestProgress{
		InstanceID:      inst.ID,
		TemplateID:      t.ID,
		Name:            t.Name,
		Description:     t.Description,
		Type:            t.Type,
		Level:           t.Level,
		Status:          inst.Status,
		CurrentBranchID: inst.CurrentBranchID,
		CurrentNodeID:   inst.CurrentNodeID,
		StartedAt:       inst.StartedAt,
		Objectives:      make([]ObjectiveView, 0, len(t.Objectives)),
		Rewards:         rewardsOf(t.Rewards),
	}
	declared := make(map[string]bool, len(t.Objectives))
	for _, obj := range t.Objectives {
		declared[obj.ID] = true
		snap, ok := inst.Progress[obj.ID]
		if !ok {
			snap = NewProgress(obj.Target)
		}
		qp.Objectives = append(qp.Objectives, ObjectiveView{
			ID:          obj.ID,
			Type:        obj.Type,
			Description: obj.Description,
			Current:     snap.Current,
			Target:      snap.Target,
			Completed:   snap.Completed,
			Optional:    obj.Optional,
		})
	}
	extra := make([]string, 0)
	for id := range inst.Progress {
		if !declared[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		snap := inst.Progress[id]
		qp.Objectives = append(qp.Objectives, ObjectiveView{
			ID:        id,
			Current:   snap.Current,
			Target:    snap.Target,
			Completed: snap.Completed,
		})
	}
	return qp
}
