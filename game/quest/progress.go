package quest

// ProgressSnapshot tracks one objective of an instance.
type ProgressSnapshot struct {
	Current   int  `json:"current"`
	Target    int  `json:"target"`
	Completed bool `json:"completed"`
}

// NewProgress returns a fresh snapshot. Targets below 1 become 1.
func NewProgress(target int) ProgressSnapshot {
	if target < 1 {
		target = 1
	}
	return ProgressSnapshot{Target: target}
}

// Add applies a delta, clamps Current to [0, Target] and recomputes Completed.
func (p *ProgressSnapshot) Add(delta int) {
	p.setCurrent(p.Current + delta)
	p.Completed = p.Current >= p.Target
}

func (p *ProgressSnapshot) setTarget(target int) {
	if target < 1 {
		target = 1
	}
	p.Target = target
	p.setCurrent(p.Current)
}

func (p *ProgressSnapshot) setCurrent(current int) {
	if current < 0 {
		current = 0
	}
	if current > p.Target {
		current = p.Target
	}
	p.Current = current
}

// Finish marks the objective as fully done.
func (p *ProgressSnapshot) Finish() {
	if p.Target < 1 {
		p.Target = 1
	}
	p.Current = p.Target
	p.Completed = true
}

// InitialProgress builds the starting progress map for a template.
func InitialProgress(t *Template) map[string]ProgressSnapshot {
	progress := make(map[string]ProgressSnapshot, len(t.Objectives))
	for _, obj := range t.Objectives {
		progress[obj.ID] = NewProgress(obj.Target)
	}
	return progress
}
