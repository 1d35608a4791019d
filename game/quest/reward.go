package quest

import "time"

// Rewards is the payout granted on completion.
type Rewards struct {
	Experience int            `json:"experience"`
	Currency   int            `json:"currency"`
	Items      []RewardItem   `json:"items"`
	Reputation map[string]int `json:"reputation"`
}

// CompletionResult is returned by CompleteQuest. It is a pure function of
// the persisted instance and its template, so repeated completion yields the
// same value.
type CompletionResult struct {
	InstanceID        string         `json:"instance_id"`
	TemplateID        string         `json:"template_id"`
	CompletedAt       time.Time      `json:"completed_at"`
	Rewards           Rewards        `json:"rewards"`
	UnlockedQuests    []string       `json:"unlocked_quests"`
	ReputationChanges map[string]int `json:"reputation_changes"`
}

func rewardsOf(f RewardFormula) Rewards {
	r := Rewards{
		Experience: f.Experience,
		Currency:   f.Currency,
		Items:      make([]RewardItem, len(f.Items)),
		Reputation: copyIntMap(f.Reputation),
	}
	copy(r.Items, f.Items)
	return r
}

// BuildCompletion derives the completion outcome for a completed instance.
func BuildCompletion(inst *Instance, t *Template) CompletionResult {
	res := CompletionResult{
		InstanceID:        inst.ID,
		TemplateID:        t.ID,
		Rewards:           rewardsOf(t.Rewards),
		UnlockedQuests:    append([]string{}, t.UnlockedQuests...),
		ReputationChanges: copyIntMap(t.ReputationChanges),
	}
	if inst.CompletedAt != nil {
		res.CompletedAt = inst.CompletedAt.UTC()
	}
	return res
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
