package quest

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/questengine/model"
	"gorm.io/gorm"
)

// Repository is the persistence surface of the instance manager. Writes that
// must land together go through Transaction.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	FindInstance(ctx context.Context, id string) (*Instance, error)
	FindActive(ctx context.Context, characterID, templateID string) (*Instance, error)
	ListActive(ctx context.Context, characterID string) ([]*Instance, error)
	CreateInstance(ctx context.Context, inst *Instance, ds *DialogueState) error
	UpdateInstance(ctx context.Context, inst *Instance) error

	FindDialogue(ctx context.Context, instanceID string) (*DialogueState, error)
	SaveDialogue(ctx context.Context, ds *DialogueState) error
	DeleteDialogue(ctx context.Context, instanceID string) error

	RecordSkillCheck(ctx context.Context, rec *model.SkillCheckRecord) error
}

// GormRepository implements Repository on gorm.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

func (r *GormRepository) FindInstance(ctx context.Context, id string) (*Instance, error) {
	var rec model.QuestInstance
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: quest instance %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load quest instance %s: %w", id, err)
	}
	return decodeInstance(&rec)
}

func (r *GormRepository) FindActive(ctx context.Context, characterID, templateID string) (*Instance, error) {
	var rec model.QuestInstance
	err := r.db.WithContext(ctx).
		Where("character_id = ? AND template_id = ? AND status = ?", characterID, templateID, model.QuestStatusActive).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no active instance of %s for %s", ErrNotFound, templateID, characterID)
	}
	if err != nil {
		return nil, fmt.Errorf("load active instance: %w", err)
	}
	return decodeInstance(&rec)
}

func (r *GormRepository) ListActive(ctx context.Context, characterID string) ([]*Instance, error) {
	var recs []model.QuestInstance
	if err := r.db.WithContext(ctx).
		Where("character_id = ? AND status = ?", characterID, model.QuestStatusActive).
		Order("started_at ASC").Order("id ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list active quests: %w", err)
	}
	out := make([]*Instance, 0, len(recs))
	for i := range recs {
		inst, err := decodeInstance(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (r *GormRepository) CreateInstance(ctx context.Context, inst *Instance, ds *DialogueState) error {
	rec, err := encodeInstance(inst)
	if err != nil {
		return err
	}
	drec, err := encodeDialogue(ds)
	if err != nil {
		return err
	}
	db := r.db.WithContext(ctx)
	if err := db.Create(rec).Error; err != nil {
		return fmt.Errorf("create quest instance: %w", err)
	}
	if err := db.Create(drec).Error; err != nil {
		return fmt.Errorf("create dialogue state: %w", err)
	}
	return nil
}

// UpdateInstance writes the instance if nobody else has since it was read,
// and bumps inst.Version on success.
func (r *GormRepository) UpdateInstance(ctx context.Context, inst *Instance) error {
	rec, err := encodeInstance(inst)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&model.QuestInstance{}).
		Where("id = ? AND version = ?", inst.ID, inst.Version).
		Updates(map[string]interface{}{
			"status":            rec.Status,
			"current_branch_id": rec.CurrentBranchID,
			"current_node_id":   rec.CurrentNodeID,
			"state_version":     rec.StateVersion,
			"state":             rec.State,
			"completed_at":      rec.CompletedAt,
			"version":           inst.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("update quest instance %s: %w", inst.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: quest instance %s was modified concurrently", ErrConflict, inst.ID)
	}
	inst.Version++
	return nil
}

func (r *GormRepository) FindDialogue(ctx context.Context, instanceID string) (*DialogueState, error) {
	var rec model.QuestDialogueState
	err := r.db.WithContext(ctx).Where("instance_id = ?", instanceID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: dialogue state for %s", ErrNotFound, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("load dialogue state %s: %w", instanceID, err)
	}
	return decodeDialogue(&rec)
}

func (r *GormRepository) SaveDialogue(ctx context.Context, ds *DialogueState) error {
	rec, err := encodeDialogue(ds)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("save dialogue state %s: %w", ds.InstanceID, err)
	}
	return nil
}

func (r *GormRepository) DeleteDialogue(ctx context.Context, instanceID string) error {
	if err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Delete(&model.QuestDialogueState{}).Error; err != nil {
		return fmt.Errorf("delete dialogue state %s: %w", instanceID, err)
	}
	return nil
}

func (r *GormRepository) RecordSkillCheck(ctx context.Context, rec *model.SkillCheckRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("record skill check: %w", err)
	}
	return nil
}
