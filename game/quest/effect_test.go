package quest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func TestApplyEffects_ProgressDeltaClamps(t *testing.T) {
	progress := map[string]ProgressSnapshot{"kill": NewProgress(3)}
	flags := Object{}

	assert.True(t, ApplyEffects([]Effect{ProgressDelta{Objective: "kill", Delta: 2}}, progress, flags))
	assert.Equal(t, ProgressSnapshot{Current: 2, Target: 3}, progress["kill"])

	ApplyEffects([]Effect{ProgressDelta{Objective: "kill", Delta: 10}}, progress, flags)
	assert.Equal(t, ProgressSnapshot{Current: 3, Target: 3, Completed: true}, progress["kill"])

	ApplyEffects([]Effect{ProgressDelta{Objective: "kill", Delta: -10}}, progress, flags)
	assert.Equal(t, ProgressSnapshot{Current: 0, Target: 3, Completed: false}, progress["kill"])
}

func TestApplyEffects_UnknownObjectiveGetsTargetOne(t *testing.T) {
	progress := map[string]ProgressSnapshot{}
	ApplyEffects([]Effect{ProgressDelta{Objective: "surprise", Delta: 1}}, progress, Object{})
	assert.Equal(t, ProgressSnapshot{Current: 1, Target: 1, Completed: true}, progress["surprise"])
}

func TestApplyEffects_ProgressSet(t *testing.T) {
	progress := map[string]ProgressSnapshot{"talk": {Current: 2, Target: 5}}

	ApplyEffects([]Effect{ProgressSet{Objective: "talk", Target: intp(0)}}, progress, Object{})
	assert.Equal(t, ProgressSnapshot{Current: 1, Target: 1, Completed: true}, progress["talk"],
		"target clamps to 1 and current follows")

	ApplyEffects([]Effect{ProgressSet{Objective: "talk", Target: intp(4), Current: intp(9)}}, progress, Object{})
	assert.Equal(t, ProgressSnapshot{Current: 4, Target: 4, Completed: true}, progress["talk"])

	ApplyEffects([]Effect{ProgressSet{Objective: "talk", Completed: boolp(false)}}, progress, Object{})
	assert.Equal(t, ProgressSnapshot{Current: 4, Target: 4, Completed: false}, progress["talk"],
		"explicit completion wins")

	assert.False(t, ApplyEffects([]Effect{ProgressSet{Objective: "talk"}}, progress, Object{}))
}

func TestApplyEffects_FlagWriteOverwrites(t *testing.T) {
	flags := Object{"mood": String("calm")}
	updated := ApplyEffects([]Effect{
		FlagWrite{Key: "mood", Value: String("angry")},
		FlagWrite{Key: "seen", Value: ObjectOf(Object{"by": String("guard")})},
	}, map[string]ProgressSnapshot{}, flags)

	assert.True(t, updated)
	assert.True(t, flags["mood"].Equal(String("angry")))
	v, ok := flags.Lookup("seen.by")
	require.True(t, ok)
	assert.True(t, v.Equal(String("guard")))
}

func TestApplyEffects_ReportsOnlyRealChanges(t *testing.T) {
	progress := map[string]ProgressSnapshot{"kill": {Current: 3, Target: 3, Completed: true}}
	flags := Object{"mood": String("calm"), "count": Int(2)}

	assert.False(t, ApplyEffects([]Effect{ProgressDelta{Objective: "kill", Delta: 1}}, progress, flags),
		"delta clamped at the target")
	assert.False(t, ApplyEffects([]Effect{ProgressDelta{Objective: "kill", Delta: 0}}, progress, flags))
	assert.False(t, ApplyEffects([]Effect{ProgressSet{Objective: "kill", Current: intp(3)}}, progress, flags))
	assert.False(t, ApplyEffects([]Effect{FlagWrite{Key: "mood", Value: String("calm")}}, progress, flags))
	assert.False(t, ApplyEffects([]Effect{FlagWrite{Key: "count", Value: Float(2)}}, progress, flags),
		"numerically equal values are the same flag value")
	assert.Equal(t, ProgressSnapshot{Current: 3, Target: 3, Completed: true}, progress["kill"])

	assert.True(t, ApplyEffects([]Effect{
		FlagWrite{Key: "mood", Value: String("calm")},
		ProgressDelta{Objective: "kill", Delta: -1},
	}, progress, flags))
	assert.True(t, ApplyEffects([]Effect{FlagWrite{Key: "fresh", Value: Null()}}, progress, flags),
		"a new key is a change even when null")
	assert.True(t, ApplyEffects([]Effect{ProgressDelta{Objective: "new", Delta: 0}}, progress, flags),
		"a new objective is a change")
}

func TestApplyEffects_NoneReportsUnchanged(t *testing.T) {
	assert.False(t, ApplyEffects(nil, map[string]ProgressSnapshot{}, Object{}))
}

func TestEffectsDocument_Decode(t *testing.T) {
	src := `
progress:
  kill: 2
  talk: {set_current: 1, set_completed: true}
flags:
  met: true
`
	var doc EffectsDocument
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	require.NotNil(t, doc.Progress["kill"].Delta)
	assert.Equal(t, 2, *doc.Progress["kill"].Delta)
	assert.Equal(t, 1, *doc.Progress["talk"].SetCurrent)
	assert.True(t, *doc.Progress["talk"].SetCompleted)
	assert.Nil(t, doc.Progress["talk"].SetTarget)

	effects, err := compileEffects(doc)
	require.NoError(t, err)
	require.Len(t, effects, 3)
	assert.Equal(t, ProgressDelta{Objective: "kill", Delta: 2}, effects[0])
	assert.IsType(t, ProgressSet{}, effects[1])
	assert.IsType(t, FlagWrite{}, effects[2])

	// Describe gives back the authoring shape.
	raw, err := json.Marshal(Describe(effects))
	require.NoError(t, err)
	assert.JSONEq(t, `{"progress":{"kill":2,"talk":{"set_current":1,"set_completed":true}},"flags":{"met":true}}`, string(raw))
}

func TestEffectsDocument_Rejects(t *testing.T) {
	cases := map[string]string{
		"string instruction": "progress: {kill: lots}",
		"unknown key":        "progress: {kill: {add: 1}}",
		"bad set_completed":  "progress: {kill: {set_completed: 1}}",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			var doc EffectsDocument
			assert.Error(t, yaml.Unmarshal([]byte(src), &doc))
		})
	}

	_, err := compileEffects(EffectsDocument{Progress: map[string]ProgressInstruction{"x": {}}})
	assert.ErrorIs(t, err, ErrInvalidContent)
	_, err = compileEffects(EffectsDocument{Progress: map[string]ProgressInstruction{"x": {Delta: intp(1), SetTarget: intp(2)}}})
	assert.ErrorIs(t, err, ErrInvalidContent)
}

func TestProgressInstruction_JSON(t *testing.T) {
	var doc EffectsDocument
	require.NoError(t, json.Unmarshal([]byte(`{"progress":{"a":-1,"b":{"set_target":4}}}`), &doc))
	assert.Equal(t, -1, *doc.Progress["a"].Delta)
	assert.Equal(t, 4, *doc.Progress["b"].SetTarget)
}
