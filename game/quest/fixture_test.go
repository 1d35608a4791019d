package quest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/questengine/audit"
	"github.com/kasuganosora/questengine/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

const courierYAML = `
id: courier
name: The Missing Courier
description: Find the courier who vanished on the north road.
type: side
level: 3
start_node: intro
start_branch: main
objectives:
  - id: find_courier
    type: location
    description: Find the courier
  - id: collect_letters
    type: collect
    description: Recover the letters
    target: 3
branches:
  - id: main
  - id: smuggler
    name: Smuggler's deal
nodes:
  intro:
    speaker: Innkeeper
    text: The courier never came back.
    options:
      - id: ask
        text: Where was he headed?
        leads_to: road
        effects:
          flags:
            asked_innkeeper: true
      - id: intimidate
        text: Tell me everything.
        required_attribute: {attribute: strength, min_value: 8}
        leads_to: road
        consequence: The innkeeper will remember this.
      - id: bribe
        text: Slide a coin across.
        conditions:
          reputation.merchants: friendly
        show_when_locked: false
        leads_to: road
      - id: wait
        text: Wait a while.
  road:
    text: Tracks lead off the road.
    options:
      - id: track
        text: Follow the tracks.
        skill_check: {skill: survival, difficulty: 12}
        leads_to: camp
        effects:
          progress:
            find_courier: 1
      - id: search
        text: Search the ditch.
        effects:
          progress:
            collect_letters: 2
      - id: back
        text: Go back to the inn.
        leads_to: intro
  camp:
    speaker: Courier
    text: You found me.
    options:
      - id: deal
        text: Take the smugglers' deal.
        branch_id: smuggler
        leads_to: camp
        effects:
          progress:
            collect_letters: {set_current: 3}
          flags:
            took_deal: true
      - id: reset
        text: Drop the letters.
        effects:
          progress:
            collect_letters: {set_current: 0, set_completed: false}
rewards:
  experience: 150
  currency: 40
  items:
    - {item_id: sealed_letter, quantity: 1}
    - {item_id: potion, quantity: 2}
  reputation: {merchants: 5}
unlocked_quests: [courier_2]
reputation_changes: {merchants: 5, smugglers: -2}
`

const patrolYAML = `
id: patrol
name: Night Patrol
type: contract
level: 1
start_node: gate
objectives:
  - id: walls
    type: interact
    target: 4
nodes:
  gate:
    text: The gate is quiet.
    options:
      - id: walk
        text: Walk the walls.
        effects:
          progress:
            walls: 1
`

func compileYAML(t *testing.T, src string) *Template {
	t.Helper()
	var doc TemplateDocument
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	tpl, err := doc.Compile()
	require.NoError(t, err)
	return tpl
}

func testTemplates(t *testing.T) MapTemplates {
	return MapTemplates{
		"courier": compileYAML(t, courierYAML),
		"patrol":  compileYAML(t, patrolYAML),
	}
}

type recordingEvents struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEvents) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.AuditEntry
}

func (r *recordingAuditor) Log(e audit.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

type harness struct {
	svc       *Service
	db        *gorm.DB
	templates MapTemplates
	rolls     *FixedRolls
	events    *recordingEvents
	audit     *recordingAuditor
}

func newHarness(t *testing.T, rolls ...int) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	h := &harness{
		db:        db,
		templates: testTemplates(t),
		rolls:     NewFixedRolls(rolls...),
		events:    &recordingEvents{},
		audit:     &recordingAuditor{},
	}
	h.svc = NewService(db, h.templates, nopLogger(),
		WithRollerSource(h.rolls),
		WithEvents(h.events),
		WithAuditor(h.audit),
		WithCharacters(NewAttributeStore(db)),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
	)
	return h
}

func (h *harness) start(t *testing.T, characterID, templateID string) *Instance {
	t.Helper()
	inst, err := h.svc.StartQuest(context.Background(), characterID, templateID)
	require.NoError(t, err)
	return inst
}

func (h *harness) choose(t *testing.T, instanceID, optionID string) *ChoiceResult {
	t.Helper()
	res, err := h.svc.ChooseDialogueOption(context.Background(), instanceID, optionID)
	require.NoError(t, err)
	return res
}
