package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/audit"
	"github.com/kasuganosora/questengine/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Auditor receives one entry per mutating operation.
type Auditor interface {
	Log(entry audit.AuditEntry)
}

// ChoiceResult is the outcome of ChooseDialogueOption. A failed skill check
// is reported with Success=false and the unchanged node.
type ChoiceResult struct {
	InstanceID      string            `json:"instance_id"`
	Success         bool              `json:"success"`
	NextNode        NodeView          `json:"next_node"`
	SkillCheck      *SkillCheckResult `json:"skill_check,omitempty"`
	EffectsApplied  EffectsDocument   `json:"effects_applied"`
	QuestUpdated    bool              `json:"quest_updated"`
	CurrentBranchID string            `json:"current_branch_id,omitempty"`
}

// Service handles all quest operations.
type Service struct {
	repo       Repository
	templates  TemplateSource
	characters CharacterSource
	locker     Locker
	resolver   *Resolver
	events     EventPublisher
	audit      Auditor
	metrics    *Metrics
	now        func() time.Time
	logger     *zap.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithRepository(r Repository) ServiceOption     { return func(s *Service) { s.repo = r } }
func WithCharacters(c CharacterSource) ServiceOption { return func(s *Service) { s.characters = c } }
func WithLocker(l Locker) ServiceOption              { return func(s *Service) { s.locker = l } }
func WithEvents(p EventPublisher) ServiceOption      { return func(s *Service) { s.events = p } }
func WithAuditor(a Auditor) ServiceOption            { return func(s *Service) { s.audit = a } }
func WithMetrics(m *Metrics) ServiceOption           { return func(s *Service) { s.metrics = m } }
func WithClock(now func() time.Time) ServiceOption   { return func(s *Service) { s.now = now } }

func WithRollerSource(src RollerSource) ServiceOption {
	return func(s *Service) { s.resolver = NewResolver(src) }
}

// NewService creates a quest Service backed by db.
func NewService(db *gorm.DB, templates TemplateSource, logger *zap.Logger, opts ...ServiceOption) *Service {
	svc := &Service{
		repo:      NewGormRepository(db),
		templates: templates,
		locker:    NewLocalLocker(),
		resolver:  NewResolver(nil),
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// StartQuest creates the single ACTIVE instance of templateID for a
// character.
func (svc *Service) StartQuest(ctx context.Context, characterID, templateID string) (inst *Instance, err error) {
	started := svc.now()
	defer func() {
		svc.record(ctx, "quest.start", characterID, idOf(inst),
			map[string]string{"template_id": templateID}, inst, err, started)
	}()

	if characterID == "" || templateID == "" {
		return nil, fmt.Errorf("%w: character id and template id are required", ErrBadRequest)
	}
	unlock, err := svc.locker.Lock(ctx, "start:"+characterID+":"+templateID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := svc.ensureNoActive(ctx, svc.repo, characterID, templateID); err != nil {
		return nil, err
	}
	tpl, err := svc.templates.Template(ctx, templateID)
	if err != nil {
		return nil, err
	}

	flags := Object{}
	if svc.characters != nil {
		snap, err := svc.characters.Snapshot(ctx, characterID)
		if err != nil {
			return nil, err
		}
		flags = snap.flags()
	}

	now := svc.stamp()
	created := &Instance{
		ID:              uuid.NewString(),
		CharacterID:     characterID,
		TemplateID:      tpl.ID,
		Status:          StatusActive,
		CurrentBranchID: tpl.StartBranchID,
		CurrentNodeID:   tpl.StartNodeID,
		Progress:        InitialProgress(tpl),
		Flags:           flags,
		StartedAt:       now,
		Version:         1,
	}
	ds := &DialogueState{
		InstanceID:    created.ID,
		CurrentNodeID: tpl.StartNodeID,
		VisitedNodes:  []string{},
		Choices:       []ChoiceRecord{},
	}
	err = svc.repo.Transaction(ctx, func(tx Repository) error {
		if err := svc.ensureNoActive(ctx, tx, characterID, templateID); err != nil {
			return err
		}
		return tx.CreateInstance(ctx, created, ds)
	})
	if err != nil {
		return nil, err
	}

	svc.metrics.incStarted()
	svc.logger.Info("quest started",
		zap.String("instance_id", created.ID),
		zap.String("character_id", characterID),
		zap.String("template_id", tpl.ID))
	svc.publish(ctx, created, EventStarted, nil)
	return created, nil
}

func (svc *Service) ensureNoActive(ctx context.Context, repo Repository, characterID, templateID string) error {
	_, err := repo.FindActive(ctx, characterID, templateID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: quest %s is already active for character %s", ErrConflict, templateID, characterID)
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}

// GetQuestInstance returns an instance by id.
func (svc *Service) GetQuestInstance(ctx context.Context, instanceID string) (*Instance, error) {
	if instanceID == "" {
		return nil, fmt.Errorf("%w: instance id is required", ErrBadRequest)
	}
	return svc.repo.FindInstance(ctx, instanceID)
}

// GetDialogueHistory returns the traversal history of an active instance.
func (svc *Service) GetDialogueHistory(ctx context.Context, instanceID string) (*DialogueState, error) {
	inst, err := svc.GetQuestInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != StatusActive {
		return nil, fmt.Errorf("%w: quest instance %s is %s", ErrConflict, instanceID, inst.Status)
	}
	return svc.repo.FindDialogue(ctx, instanceID)
}

// GetCurrentDialogue renders the node the instance currently sits on.
func (svc *Service) GetCurrentDialogue(ctx context.Context, instanceID string) (*NodeView, error) {
	inst, err := svc.GetQuestInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != StatusActive {
		return nil, fmt.Errorf("%w: quest instance %s is %s", ErrConflict, instanceID, inst.Status)
	}
	tpl, err := svc.templates.Template(ctx, inst.TemplateID)
	if err != nil {
		return nil, err
	}
	ds, err := svc.repo.FindDialogue(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	node, err := resolveNode(tpl, ds.CurrentNodeID)
	if err != nil {
		return nil, err
	}
	view := RenderNode(node, inst.Flags)
	return &view, nil
}

// ChooseDialogueOption validates and applies one choice on the current node.
func (svc *Service) ChooseDialogueOption(ctx context.Context, instanceID, optionID string) (res *ChoiceResult, err error) {
	started := svc.now()
	var characterID string
	defer func() {
		svc.record(ctx, "quest.choose", characterID, instanceID,
			map[string]string{"option_id": optionID}, res, err, started)
	}()

	if instanceID == "" {
		return nil, fmt.Errorf("%w: instance id is required", ErrBadRequest)
	}
	if optionID == "" {
		return nil, fmt.Errorf("%w: option id is required", ErrBadRequest)
	}
	unlock, err := svc.locker.Lock(ctx, "instance:"+instanceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	inst, err := svc.repo.FindInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	characterID = inst.CharacterID
	if inst.Status != StatusActive {
		return nil, fmt.Errorf("%w: quest instance %s is %s", ErrConflict, instanceID, inst.Status)
	}
	tpl, err := svc.templates.Template(ctx, inst.TemplateID)
	if err != nil {
		return nil, err
	}
	ds, err := svc.repo.FindDialogue(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	node, err := resolveNode(tpl, ds.CurrentNodeID)
	if err != nil {
		return nil, err
	}
	opt, ok := node.Option(optionID)
	if !ok {
		return nil, fmt.Errorf("%w: option %s not found on node %s", ErrBadRequest, optionID, node.ID)
	}
	if !IsOptionAvailable(opt, inst.Flags) {
		return nil, fmt.Errorf("%w: option %s is not available", ErrBadRequest, optionID)
	}
	next := node
	if opt.LeadsTo != "" {
		if next, err = resolveNode(tpl, opt.LeadsTo); err != nil {
			return nil, err
		}
	}

	var check *SkillCheckResult
	if opt.SkillCheck != nil {
		r, err := svc.resolver.Resolve(*opt.SkillCheck, SkillModifier(inst.Flags, opt.SkillCheck.Skill))
		if err != nil {
			return nil, err
		}
		check = &r
		svc.metrics.observeSkillCheck(r.Success)
	}

	if check != nil && !check.Success {
		if err := svc.repo.RecordSkillCheck(ctx, skillCheckRecord(inst.ID, node.ID, opt.ID, check)); err != nil {
			return nil, err
		}
		svc.metrics.observeChoice(false)
		svc.logger.Debug("dialogue skill check failed",
			zap.String("instance_id", inst.ID),
			zap.String("option_id", opt.ID),
			zap.Int("total", check.Total),
			zap.Int("difficulty", check.Difficulty))
		return &ChoiceResult{
			InstanceID:      inst.ID,
			Success:         false,
			NextNode:        RenderNode(node, inst.Flags),
			SkillCheck:      check,
			EffectsApplied:  EffectsDocument{},
			CurrentBranchID: inst.CurrentBranchID,
		}, nil
	}

	updated := ApplyEffects(opt.Effects, inst.Progress, inst.Flags)
	ds.advance(node.ID, opt.ID, next.ID, svc.stamp())
	inst.CurrentNodeID = next.ID
	if opt.BranchID != "" {
		inst.CurrentBranchID = opt.BranchID
	}

	err = svc.repo.Transaction(ctx, func(tx Repository) error {
		if check != nil {
			if err := tx.RecordSkillCheck(ctx, skillCheckRecord(inst.ID, node.ID, opt.ID, check)); err != nil {
				return err
			}
		}
		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return err
		}
		return tx.SaveDialogue(ctx, ds)
	})
	if err != nil {
		return nil, err
	}

	svc.metrics.observeChoice(true)
	svc.publish(ctx, inst, EventDialogueAdvanced, map[string]string{
		"from_node": node.ID,
		"option_id": opt.ID,
	})
	return &ChoiceResult{
		InstanceID:      inst.ID,
		Success:         true,
		NextNode:        RenderNode(next, inst.Flags),
		SkillCheck:      check,
		EffectsApplied:  Describe(opt.Effects),
		QuestUpdated:    updated,
		CurrentBranchID: inst.CurrentBranchID,
	}, nil
}

func skillCheckRecord(instanceID, nodeID, optionID string, r *SkillCheckResult) *model.SkillCheckRecord {
	return &model.SkillCheckRecord{
		InstanceID:      instanceID,
		NodeID:          nodeID,
		OptionID:        optionID,
		Skill:           r.Skill,
		Difficulty:      r.Difficulty,
		Roll:            r.Roll,
		SecondaryRoll:   r.SecondaryRoll(),
		Modifier:        r.Modifier,
		Total:           r.Total,
		Success:         r.Success,
		CriticalSuccess: r.CriticalSuccess,
		CriticalFailure: r.CriticalFailure,
		AdvantageUsed:   r.AdvantageUsed,
		Seed:            r.Seed,
	}
}

// PerformSkillCheck runs an ad hoc check using the instance's skill
// modifiers. Nothing is persisted.
func (svc *Service) PerformSkillCheck(ctx context.Context, instanceID, skill string, difficulty int, advantage bool) (*SkillCheckResult, error) {
	if skill == "" {
		return nil, fmt.Errorf("%w: skill is required", ErrBadRequest)
	}
	inst, err := svc.GetQuestInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	res, err := svc.resolver.Resolve(SkillCheckSpec{
		Skill:      skill,
		Difficulty: difficulty,
		Advantage:  advantage,
	}, SkillModifier(inst.Flags, skill))
	if err != nil {
		return nil, err
	}
	svc.metrics.observeSkillCheck(res.Success)
	return &res, nil
}

// CompleteQuest finishes an instance and returns its rewards. Completing an
// already completed instance returns the same result again.
func (svc *Service) CompleteQuest(ctx context.Context, instanceID, proof string) (res *CompletionResult, err error) {
	started := svc.now()
	var characterID string
	defer func() {
		svc.record(ctx, "quest.complete", characterID, instanceID,
			map[string]string{"proof": proof}, res, err, started)
	}()

	if instanceID == "" {
		return nil, fmt.Errorf("%w: instance id is required", ErrBadRequest)
	}
	unlock, err := svc.locker.Lock(ctx, "instance:"+instanceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	inst, err := svc.repo.FindInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	characterID = inst.CharacterID
	switch inst.Status {
	case StatusCompleted:
		tpl, err := svc.templates.Template(ctx, inst.TemplateID)
		if err != nil {
			return nil, err
		}
		out := BuildCompletion(inst, tpl)
		return &out, nil
	case StatusFailed, StatusAbandoned:
		return nil, fmt.Errorf("%w: quest instance %s is %s", ErrConflict, instanceID, inst.Status)
	}

	tpl, err := svc.templates.Template(ctx, inst.TemplateID)
	if err != nil {
		return nil, err
	}
	for _, obj := range tpl.Objectives {
		if _, ok := inst.Progress[obj.ID]; !ok {
			inst.Progress[obj.ID] = NewProgress(obj.Target)
		}
	}
	for id, snap := range inst.Progress {
		snap.Finish()
		inst.Progress[id] = snap
	}
	now := svc.stamp()
	inst.Status = StatusCompleted
	inst.CompletedAt = &now

	if err := svc.closeInstance(ctx, inst); err != nil {
		return nil, err
	}
	out := BuildCompletion(inst, tpl)

	svc.metrics.incCompleted()
	svc.logger.Info("quest completed",
		zap.String("instance_id", inst.ID),
		zap.String("character_id", inst.CharacterID),
		zap.String("template_id", inst.TemplateID),
		zap.Int("experience", out.Rewards.Experience))
	svc.publish(ctx, inst, EventCompleted, out)
	return &out, nil
}

// AbandonQuest moves an active instance to ABANDONED. Terminal instances are
// returned unchanged.
func (svc *Service) AbandonQuest(ctx context.Context, instanceID string) (*Instance, error) {
	return svc.terminate(ctx, instanceID, StatusAbandoned)
}

// FailQuest moves an active instance to FAILED. Terminal instances are
// returned unchanged.
func (svc *Service) FailQuest(ctx context.Context, instanceID string) (*Instance, error) {
	return svc.terminate(ctx, instanceID, StatusFailed)
}

func (svc *Service) terminate(ctx context.Context, instanceID string, to Status) (inst *Instance, err error) {
	action, event := "quest.abandon", EventAbandoned
	if to == StatusFailed {
		action, event = "quest.fail", EventFailed
	}
	started := svc.now()
	defer func() {
		svc.record(ctx, action, characterOf(inst), instanceID, nil, inst, err, started)
	}()

	if instanceID == "" {
		return nil, fmt.Errorf("%w: instance id is required", ErrBadRequest)
	}
	unlock, err := svc.locker.Lock(ctx, "instance:"+instanceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := svc.repo.FindInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return current, nil
	}
	now := svc.stamp()
	current.Status = to
	current.CompletedAt = &now
	if err := svc.closeInstance(ctx, current); err != nil {
		return nil, err
	}

	if to == StatusFailed {
		svc.metrics.incFailed()
	} else {
		svc.metrics.incAbandoned()
	}
	svc.logger.Info("quest closed",
		zap.String("instance_id", current.ID),
		zap.String("status", string(to)))
	svc.publish(ctx, current, event, nil)
	return current, nil
}

// closeInstance persists a terminal transition and drops the dialogue state.
func (svc *Service) closeInstance(ctx context.Context, inst *Instance) error {
	return svc.repo.Transaction(ctx, func(tx Repository) error {
		if err := tx.UpdateInstance(ctx, inst); err != nil {
			return err
		}
		return tx.DeleteDialogue(ctx, inst.ID)
	})
}

// GetActiveQuests lists a character's active quests with their progress.
// Instances whose template is gone are skipped.
func (svc *Service) GetActiveQuests(ctx context.Context, characterID string) ([]QuestProgress, error) {
	if characterID == "" {
		return nil, fmt.Errorf("%w: character id is required", ErrBadRequest)
	}
	instances, err := svc.repo.ListActive(ctx, characterID)
	if err != nil {
		return nil, err
	}
	out := make([]QuestProgress, 0, len(instances))
	for _, inst := range instances {
		tpl, err := svc.templates.Template(ctx, inst.TemplateID)
		if errors.Is(err, ErrNotFound) {
			svc.logger.Warn("skipping quest with missing template",
				zap.String("instance_id", inst.ID),
				zap.String("template_id", inst.TemplateID))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, buildProgress(inst, tpl))
	}
	return out, nil
}

// stamp returns the current time at the precision every supported database
// keeps, so a re-read timestamp equals the one handed out.
func (svc *Service) stamp() time.Time {
	return svc.now().UTC().Truncate(time.Millisecond)
}

func (svc *Service) publish(ctx context.Context, inst *Instance, typ string, data interface{}) {
	if svc.events == nil {
		return
	}
	ev := Event{
		Type:        typ,
		InstanceID:  inst.ID,
		CharacterID: inst.CharacterID,
		TemplateID:  inst.TemplateID,
		NodeID:      inst.CurrentNodeID,
		At:          svc.stamp(),
		Data:        data,
	}
	if err := svc.events.Publish(ctx, ev); err != nil {
		svc.logger.Warn("publish quest event failed",
			zap.String("type", typ),
			zap.String("instance_id", inst.ID),
			zap.Error(err))
	}
}

func (svc *Service) record(ctx context.Context, action, characterID, instanceID string, req, resp interface{}, err error, started time.Time) {
	if svc.audit == nil {
		return
	}
	entry := audit.AuditEntry{
		TraceID:     audit.TraceID(ctx),
		CharacterID: characterID,
		InstanceID:  instanceID,
		Action:      action,
		Request:     req,
		DurationMs:  int(svc.now().Sub(started).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Response = resp
	}
	svc.audit.Log(entry)
}

func idOf(inst *Instance) string {
	if inst == nil {
		return ""
	}
	return inst.ID
}

func characterOf(inst *Instance) string {
	if inst == nil {
		return ""
	}
	return inst.CharacterID
}
