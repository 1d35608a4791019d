package quest

import "sort"

// Effect is one narrative mutation attached to a dialogue option. The set of
// implementations is closed: ProgressDelta, ProgressSet and FlagWrite.
type Effect interface {
	apply(progress map[string]ProgressSnapshot, flags Object) bool
	describe(doc *EffectsDocument)
}

// ProgressDelta adds Delta to an objective's current count.
type ProgressDelta struct {
	Objective string
	Delta     int
}

// ProgressSet overrides parts of an objective snapshot. Nil fields are left
// alone; Completed, when set, wins over recomputation.
type ProgressSet struct {
	Objective string
	Current   *int
	Target    *int
	Completed *bool
}

// FlagWrite overwrites a top-level flag.
type FlagWrite struct {
	Key   string
	Value Value
}

func snapshotFor(progress map[string]ProgressSnapshot, id string) ProgressSnapshot {
	snap, ok := progress[id]
	if !ok || snap.Target < 1 {
		snap.Target = 1
	}
	return snap
}

// storeSnapshot writes snap and reports whether the map changed.
func storeSnapshot(progress map[string]ProgressSnapshot, id string, snap ProgressSnapshot) bool {
	before, ok := progress[id]
	progress[id] = snap
	return !ok || before != snap
}

func (e ProgressDelta) apply(progress map[string]ProgressSnapshot, _ Object) bool {
	snap := snapshotFor(progress, e.Objective)
	snap.Add(e.Delta)
	return storeSnapshot(progress, e.Objective, snap)
}

func (e ProgressSet) apply(progress map[string]ProgressSnapshot, _ Object) bool {
	if e.Current == nil && e.Target == nil && e.Completed == nil {
		return false
	}
	snap := snapshotFor(progress, e.Objective)
	if e.Target != nil {
		snap.setTarget(*e.Target)
	}
	if e.Current != nil {
		snap.setCurrent(*e.Current)
	}
	if e.Completed != nil {
		snap.Completed = *e.Completed
	} else {
		snap.Completed = snap.Current >= snap.Target
	}
	return storeSnapshot(progress, e.Objective, snap)
}

func (e FlagWrite) apply(_ map[string]ProgressSnapshot, flags Object) bool {
	if prev, ok := flags[e.Key]; ok && prev.Equal(e.Value) {
		return false
	}
	flags[e.Key] = e.Value.Clone()
	return true
}

// ApplyEffects runs effects in order against progress and flags and reports
// whether anything changed. Both maps must be non-nil.
func ApplyEffects(effects []Effect, progress map[string]ProgressSnapshot, flags Object) bool {
	updated := false
	for _, e := range effects {
		if e.apply(progress, flags) {
			updated = true
		}
	}
	return updated
}

// Describe folds effects back into their authoring shape, which is what the
// API echoes as effects_applied.
func Describe(effects []Effect) EffectsDocument {
	doc := EffectsDocument{}
	for _, e := range effects {
		e.describe(&doc)
	}
	return doc
}

func (e ProgressDelta) describe(doc *EffectsDocument) {
	if doc.Progress == nil {
		doc.Progress = make(map[string]ProgressInstruction)
	}
	d := e.Delta
	doc.Progress[e.Objective] = ProgressInstruction{Delta: &d}
}

func (e ProgressSet) describe(doc *EffectsDocument) {
	if doc.Progress == nil {
		doc.Progress = make(map[string]ProgressInstruction)
	}
	doc.Progress[e.Objective] = ProgressInstruction{
		SetCurrent:   e.Current,
		SetTarget:    e.Target,
		SetCompleted: e.Completed,
	}
}

func (e FlagWrite) describe(doc *EffectsDocument) {
	if doc.Flags == nil {
		doc.Flags = make(Object)
	}
	doc.Flags[e.Key] = e.Value
}

// compileEffects turns the authoring shape into ordered variants. Progress
// entries come first, then flags, each sorted by key so application order is
// stable.
func compileEffects(doc EffectsDocument) ([]Effect, error) {
	var out []Effect
	ids := make([]string, 0, len(doc.Progress))
	for id := range doc.Progress {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ins := doc.Progress[id]
		if id == "" {
			return nil, contentErrorf("progress effect with empty objective id")
		}
		switch {
		case ins.Delta != nil && (ins.SetCurrent != nil || ins.SetTarget != nil || ins.SetCompleted != nil):
			return nil, contentErrorf("progress effect %q mixes a delta with set_* fields", id)
		case ins.Delta != nil:
			out = append(out, ProgressDelta{Objective: id, Delta: *ins.Delta})
		case ins.SetCurrent != nil || ins.SetTarget != nil || ins.SetCompleted != nil:
			out = append(out, ProgressSet{
				Objective: id,
				Current:   ins.SetCurrent,
				Target:    ins.SetTarget,
				Completed: ins.SetCompleted,
			})
		default:
			return nil, contentErrorf("progress effect %q has no instruction", id)
		}
	}
	for _, key := range doc.Flags.Keys() {
		if key == "" {
			return nil, contentErrorf("flag effect with empty key")
		}
		out = append(out, FlagWrite{Key: key, Value: doc.Flags[key]})
	}
	return out, nil
}
