package quest

import (
	"errors"
	"testing"

	"github.com/KirkDiggler/rpg-toolkit/dice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoll_Basic(t *testing.T) {
	res, err := Roll(NewFixedRolls(11).mustRoller(), SkillCheckSpec{Skill: "lore", Difficulty: 14}, 3)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Roll)
	assert.Equal(t, 14, res.Total)
	assert.True(t, res.Success)
	assert.Equal(t, []int{11}, res.Rolls)
	assert.False(t, res.AdvantageUsed)
	assert.Nil(t, res.SecondaryRoll())
}

func TestRoll_AdvantageKeepsHigher(t *testing.T) {
	res, err := Roll(NewFixedRolls(4, 16).mustRoller(), SkillCheckSpec{Skill: "lore", Difficulty: 15, Advantage: true}, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, res.Roll)
	assert.Equal(t, []int{16, 4}, res.Rolls)
	assert.Equal(t, 4, *res.SecondaryRoll())
	assert.True(t, res.Success)
}

func TestRoll_Criticals(t *testing.T) {
	nat20, err := Roll(NewFixedRolls(20).mustRoller(), SkillCheckSpec{Skill: "s", Difficulty: 30}, 0)
	require.NoError(t, err)
	assert.True(t, nat20.CriticalSuccess)
	assert.False(t, nat20.Success, "a natural 20 still has to meet the difficulty")

	nat1, err := Roll(NewFixedRolls(1).mustRoller(), SkillCheckSpec{Skill: "s", Difficulty: 5}, 10)
	require.NoError(t, err)
	assert.True(t, nat1.CriticalFailure)
	assert.True(t, nat1.Success)
}

// scriptedDice is a dice.Roller that returns queued values, then err.
type scriptedDice struct {
	vals  []int
	sizes []int
	err   error
}

func (d *scriptedDice) Roll(size int) (int, error) {
	d.sizes = append(d.sizes, size)
	if len(d.vals) == 0 {
		return 0, d.err
	}
	v := d.vals[0]
	d.vals = d.vals[1:]
	return v, nil
}

func (d *scriptedDice) RollN(count, size int) ([]int, error) {
	out := make([]int, 0, count)
	for i := 0; i < count; i++ {
		v, err := d.Roll(size)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

var _ dice.Roller = (*scriptedDice)(nil)

func TestResolver_DefaultsToDice(t *testing.T) {
	r := NewResolver(nil)
	_, ok := r.source.(DiceRolls)
	assert.True(t, ok)

	res, err := r.Resolve(SkillCheckSpec{Skill: "lore", Difficulty: 10, Advantage: true}, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Roll, 1)
	assert.LessOrEqual(t, res.Roll, 20)
	assert.Len(t, res.Rolls, 2)
	assert.Zero(t, res.Seed)
}

func TestResolver_DiceRollsUsesToolkitRoller(t *testing.T) {
	d := &scriptedDice{vals: []int{7, 18}}
	r := NewResolver(DiceRolls{Roller: d})

	res, err := r.Resolve(SkillCheckSpec{Skill: "stealth", Difficulty: 20, Advantage: true}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{20, 20}, d.sizes)
	assert.Equal(t, 18, res.Roll)
	assert.Equal(t, 20, res.Total)
	assert.True(t, res.Success)
	assert.Zero(t, res.Seed, "toolkit rolls are not replayable")
}

func TestResolver_DiceErrorPropagates(t *testing.T) {
	boom := errors.New("entropy exhausted")
	r := NewResolver(DiceRolls{Roller: &scriptedDice{vals: []int{12}, err: boom}})

	_, err := r.Resolve(SkillCheckSpec{Skill: "lore", Difficulty: 10}, 0)
	require.NoError(t, err)

	_, err = r.Resolve(SkillCheckSpec{Skill: "lore", Difficulty: 10, Advantage: true}, 0)
	assert.ErrorIs(t, err, boom)
}

func TestResolver_SeededIsReplayable(t *testing.T) {
	r := NewResolver(SeededRolls{})
	spec := SkillCheckSpec{Skill: "athletics", Difficulty: 10, Advantage: true}

	for i := 0; i < 20; i++ {
		res, err := r.Resolve(spec, 2)
		require.NoError(t, err)
		assert.NotZero(t, res.Seed)
		assert.GreaterOrEqual(t, res.Roll, 1)
		assert.LessOrEqual(t, res.Roll, 20)
		assert.GreaterOrEqual(t, res.Rolls[0], res.Rolls[1])
		assert.Equal(t, res, Replay(res.Seed, spec, 2))
	}
}

func TestSkillModifier(t *testing.T) {
	flags := Object{flagSkillModifiers: ObjectOf(Object{"stealth": Int(3), "odd": String("x")})}
	assert.Equal(t, 3, SkillModifier(flags, "stealth"))
	assert.Equal(t, 0, SkillModifier(flags, "odd"))
	assert.Equal(t, 0, SkillModifier(flags, "missing"))
	assert.Equal(t, 0, SkillModifier(Object{}, "stealth"))
}

func (f *FixedRolls) mustRoller() Roller {
	r, _ := f.NewRoller()
	return r
}
