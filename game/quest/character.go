package quest

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/questengine/model"
	"gorm.io/gorm"
)

// CharacterSnapshot is the character data a quest copies into its flags at
// start.
type CharacterSnapshot struct {
	Attributes     map[string]int
	SkillModifiers map[string]int
}

// CharacterSource supplies character snapshots.
type CharacterSource interface {
	Snapshot(ctx context.Context, characterID string) (CharacterSnapshot, error)
}

// AttributeStore reads snapshots from character_attributes rows.
type AttributeStore struct {
	db *gorm.DB
}

func NewAttributeStore(db *gorm.DB) *AttributeStore {
	return &AttributeStore{db: db}
}

func (s *AttributeStore) Snapshot(ctx context.Context, characterID string) (CharacterSnapshot, error) {
	var rows []model.CharacterAttribute
	if err := s.db.WithContext(ctx).Where("character_id = ?", characterID).Find(&rows).Error; err != nil {
		return CharacterSnapshot{}, fmt.Errorf("load character %s attributes: %w", characterID, err)
	}
	snap := CharacterSnapshot{
		Attributes:     make(map[string]int),
		SkillModifiers: make(map[string]int),
	}
	for _, r := range rows {
		switch r.Kind {
		case model.AttributeKindAttribute:
			snap.Attributes[r.Name] = r.Value
		case model.AttributeKindSkillModifier:
			snap.SkillModifiers[r.Name] = r.Value
		}
	}
	return snap, nil
}

// Set upserts one attribute or skill modifier value.
func (s *AttributeStore) Set(ctx context.Context, characterID, kind, name string, value int) error {
	if kind != model.AttributeKindAttribute && kind != model.AttributeKindSkillModifier {
		return fmt.Errorf("%w: unknown attribute kind %q", ErrBadRequest, kind)
	}
	if characterID == "" || name == "" {
		return fmt.Errorf("%w: character id and name are required", ErrBadRequest)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.CharacterAttribute
		err := tx.Where("character_id = ? AND kind = ? AND name = ?", characterID, kind, name).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.CharacterAttribute{
				CharacterID: characterID, Kind: kind, Name: name, Value: value,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&row).Update("value", value).Error
	})
}

// flags returns the initial flag object for a new instance.
func (c CharacterSnapshot) flags() Object {
	flags := Object{}
	if len(c.Attributes) > 0 {
		flags[flagAttributes] = intsToValue(c.Attributes)
	}
	if len(c.SkillModifiers) > 0 {
		flags[flagSkillModifiers] = intsToValue(c.SkillModifiers)
	}
	return flags
}

func intsToValue(m map[string]int) Value {
	obj := make(Object, len(m))
	for k, v := range m {
		obj[k] = Int(int64(v))
	}
	return ObjectOf(obj)
}
