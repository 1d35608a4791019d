package quest

import (
	"encoding/json"
	"fmt"

	"github.com/kasuganosora/questengine/model"
	"gorm.io/datatypes"
)

// stateVersion is the envelope version written for instance state and
// dialogue history. Readers reject anything they do not understand instead
// of guessing.
const stateVersion = 1

type instanceEnvelope struct {
	V        int                         `json:"v"`
	Progress map[string]ProgressSnapshot `json:"progress"`
	Flags    Object                      `json:"flags"`
}

type historyEnvelope struct {
	V            int            `json:"v"`
	VisitedNodes []string       `json:"visited_nodes"`
	Choices      []ChoiceRecord `json:"choices"`
}

func encodeInstance(inst *Instance) (*model.QuestInstance, error) {
	progress := inst.Progress
	if progress == nil {
		progress = map[string]ProgressSnapshot{}
	}
	flags := inst.Flags
	if flags == nil {
		flags = Object{}
	}
	raw, err := json.Marshal(instanceEnvelope{V: stateVersion, Progress: progress, Flags: flags})
	if err != nil {
		return nil, fmt.Errorf("encode instance %s: %w", inst.ID, err)
	}
	return &model.QuestInstance{
		ID:              inst.ID,
		CharacterID:     inst.CharacterID,
		TemplateID:      inst.TemplateID,
		Status:          string(inst.Status),
		CurrentBranchID: inst.CurrentBranchID,
		CurrentNodeID:   inst.CurrentNodeID,
		StateVersion:    stateVersion,
		State:           datatypes.JSON(raw),
		Version:         inst.Version,
		StartedAt:       inst.StartedAt,
		CompletedAt:     inst.CompletedAt,
	}, nil
}

func decodeInstance(rec *model.QuestInstance) (*Instance, error) {
	if rec.StateVersion != stateVersion {
		return nil, fmt.Errorf("%w: instance %s has unsupported state version %d", ErrDataIntegrity, rec.ID, rec.StateVersion)
	}
	var env instanceEnvelope
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &env); err != nil {
			return nil, fmt.Errorf("%w: decode instance %s: %v", ErrDataIntegrity, rec.ID, err)
		}
		if env.V != stateVersion {
			return nil, fmt.Errorf("%w: instance %s envelope version %d", ErrDataIntegrity, rec.ID, env.V)
		}
	}
	if env.Progress == nil {
		env.Progress = map[string]ProgressSnapshot{}
	}
	if env.Flags == nil {
		env.Flags = Object{}
	}
	return &Instance{
		ID:              rec.ID,
		CharacterID:     rec.CharacterID,
		TemplateID:      rec.TemplateID,
		Status:          Status(rec.Status),
		CurrentBranchID: rec.CurrentBranchID,
		CurrentNodeID:   rec.CurrentNodeID,
		Progress:        env.Progress,
		Flags:           env.Flags,
		StartedAt:       rec.StartedAt,
		CompletedAt:     rec.CompletedAt,
		Version:         rec.Version,
	}, nil
}

func encodeDialogue(ds *DialogueState) (*model.QuestDialogueState, error) {
	env := historyEnvelope{V: stateVersion, VisitedNodes: ds.VisitedNodes, Choices: ds.Choices}
	if env.VisitedNodes == nil {
		env.VisitedNodes = []string{}
	}
	if env.Choices == nil {
		env.Choices = []ChoiceRecord{}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode dialogue %s: %w", ds.InstanceID, err)
	}
	return &model.QuestDialogueState{
		InstanceID:    ds.InstanceID,
		CurrentNodeID: ds.CurrentNodeID,
		StateVersion:  stateVersion,
		History:       datatypes.JSON(raw),
	}, nil
}

func decodeDialogue(rec *model.QuestDialogueState) (*DialogueState, error) {
	if rec.StateVersion != stateVersion {
		return nil, fmt.Errorf("%w: dialogue %s has unsupported state version %d", ErrDataIntegrity, rec.InstanceID, rec.StateVersion)
	}
	var env historyEnvelope
	if len(rec.History) > 0 {
		if err := json.Unmarshal(rec.History, &env); err != nil {
			return nil, fmt.Errorf("%w: decode dialogue %s: %v", ErrDataIntegrity, rec.InstanceID, err)
		}
	}
	ds := &DialogueState{
		InstanceID:    rec.InstanceID,
		CurrentNodeID: rec.CurrentNodeID,
		VisitedNodes:  env.VisitedNodes,
		Choices:       env.Choices,
	}
	if ds.VisitedNodes == nil {
		ds.VisitedNodes = []string{}
	}
	if ds.Choices == nil {
		ds.Choices = []ChoiceRecord{}
	}
	return ds, nil
}
