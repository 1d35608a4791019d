package quest

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/KirkDiggler/rpg-toolkit/dice"
)

// Roller rolls d20s for a single skill check. A Roller is never shared
// between checks.
type Roller interface {
	RollD20() (int, error)
}

// RollerSource hands out a fresh Roller per check together with the seed it
// was built from. A zero seed means the check cannot be replayed.
type RollerSource interface {
	NewRoller() (Roller, int64)
}

// DiceRolls is the production RollerSource. Rolls come from an rpg-toolkit
// dice.Roller; a nil Roller uses the toolkit's crypto-backed default.
type DiceRolls struct {
	Roller dice.Roller
}

func (d DiceRolls) NewRoller() (Roller, int64) {
	r := d.Roller
	if r == nil {
		r = dice.DefaultRoller
	}
	return diceRoller{r}, 0
}

type diceRoller struct{ r dice.Roller }

func (d diceRoller) RollD20() (int, error) { return d.r.Roll(20) }

type seededRoller struct {
	rng *rand.Rand
}

func (r *seededRoller) RollD20() (int, error) { return r.rng.Intn(20) + 1, nil }

// NewSeededRoller returns a deterministic roller for the given seed. It backs
// Replay and SeededRolls.
func NewSeededRoller(seed int64) Roller {
	return &seededRoller{rng: rand.New(rand.NewSource(seed))}
}

// SeededRolls gives every check its own math/rand source seeded from
// crypto/rand. The seed is kept on the result so the check can be recomputed
// with Replay. Use it where skill checks must be auditable roll by roll.
type SeededRolls struct{}

func (SeededRolls) NewRoller() (Roller, int64) {
	seed := newSeed()
	return NewSeededRoller(seed), seed
}

func newSeed() int64 {
	var b [8]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			return time.Now().UnixNano() | 1
		}
		if s := int64(binary.LittleEndian.Uint64(b[:])); s != 0 {
			return s
		}
	}
}

// FixedRolls replays a scripted sequence of d20 results across checks. Once
// exhausted it keeps returning the last value. Intended for tests and
// scripted demos.
type FixedRolls struct {
	mu    sync.Mutex
	rolls []int
	pos   int
}

func NewFixedRolls(rolls ...int) *FixedRolls {
	return &FixedRolls{rolls: rolls}
}

func (f *FixedRolls) NewRoller() (Roller, int64) {
	return fixedRoller{f}, 0
}

func (f *FixedRolls) next() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rolls) == 0 {
		return 1
	}
	if f.pos >= len(f.rolls) {
		return f.rolls[len(f.rolls)-1]
	}
	v := f.rolls[f.pos]
	f.pos++
	return v
}

type fixedRoller struct{ f *FixedRolls }

func (r fixedRoller) RollD20() (int, error) { return r.f.next(), nil }
