package quest

import "fmt"

// SkillCheckResult is the outcome of one d20 check. A failed check is an
// outcome, not an error.
type SkillCheckResult struct {
	Skill           string `json:"skill"`
	Difficulty      int    `json:"difficulty"`
	Roll            int    `json:"roll"`
	Modifier        int    `json:"modifier"`
	Total           int    `json:"total"`
	Success         bool   `json:"success"`
	CriticalSuccess bool   `json:"critical_success"`
	CriticalFailure bool   `json:"critical_failure"`
	AdvantageUsed   bool   `json:"advantage_used"`
	Rolls           []int  `json:"rolls"`
	Seed            int64  `json:"-"`
}

// SecondaryRoll returns the advantage die, if one was rolled.
func (r SkillCheckResult) SecondaryRoll() *int {
	if len(r.Rolls) < 2 {
		return nil
	}
	v := r.Rolls[1]
	return &v
}

// Resolver runs skill checks with rollers drawn from a RollerSource.
type Resolver struct {
	source RollerSource
}

func NewResolver(source RollerSource) *Resolver {
	if source == nil {
		source = DiceRolls{}
	}
	return &Resolver{source: source}
}

// Resolve rolls one d20 (two with advantage, keeping the higher) and scores
// it against the difficulty.
func (r *Resolver) Resolve(spec SkillCheckSpec, modifier int) (SkillCheckResult, error) {
	roller, seed := r.source.NewRoller()
	res, err := Roll(roller, spec, modifier)
	if err != nil {
		return SkillCheckResult{}, err
	}
	res.Seed = seed
	return res, nil
}

// Replay recomputes a check from its recorded seed. Only checks rolled by
// SeededRolls carry a seed.
func Replay(seed int64, spec SkillCheckSpec, modifier int) SkillCheckResult {
	res, _ := Roll(NewSeededRoller(seed), spec, modifier) // seeded rollers never fail
	res.Seed = seed
	return res
}

// Roll performs a check with the given roller.
func Roll(roller Roller, spec SkillCheckSpec, modifier int) (SkillCheckResult, error) {
	primary, err := roller.RollD20()
	if err != nil {
		return SkillCheckResult{}, fmt.Errorf("roll d20: %w", err)
	}
	rolls := []int{primary}
	if spec.Advantage {
		secondary, err := roller.RollD20()
		if err != nil {
			return SkillCheckResult{}, fmt.Errorf("roll d20: %w", err)
		}
		if secondary > primary {
			primary, secondary = secondary, primary
		}
		rolls = []int{primary, secondary}
	}
	total := primary + modifier
	return SkillCheckResult{
		Skill:           spec.Skill,
		Difficulty:      spec.Difficulty,
		Roll:            primary,
		Modifier:        modifier,
		Total:           total,
		Success:         total >= spec.Difficulty,
		CriticalSuccess: primary == 20,
		CriticalFailure: primary == 1,
		AdvantageUsed:   spec.Advantage,
		Rolls:           rolls,
	}, nil
}
