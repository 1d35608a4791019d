package quest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/kasuganosora/questengine/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TemplateSource resolves compiled templates by id. Unknown ids yield
// ErrNotFound.
type TemplateSource interface {
	Template(ctx context.Context, id string) (*Template, error)
}

// MapTemplates is an in-memory TemplateSource.
type MapTemplates map[string]*Template

func (m MapTemplates) Template(_ context.Context, id string) (*Template, error) {
	t, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: quest template %s", ErrNotFound, id)
	}
	return t, nil
}

// TemplateStore serves templates from quest_template_records, keeping
// compiled templates in an LRU so the graph is not re-decoded per call.
type TemplateStore struct {
	db     *gorm.DB
	cache  *lru.Cache
	logger *zap.Logger
}

func NewTemplateStore(db *gorm.DB, cacheSize int, logger *zap.Logger) (*TemplateStore, error) {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &TemplateStore{db: db, cache: c, logger: logger}, nil
}

func (s *TemplateStore) Template(ctx context.Context, id string) (*Template, error) {
	if v, ok := s.cache.Get(id); ok {
		return v.(*Template), nil
	}
	var rec model.QuestTemplateRecord
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: quest template %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load quest template %s: %w", id, err)
	}
	t, err := ParseTemplateJSON(rec.Definition)
	if err != nil {
		return nil, fmt.Errorf("%w: stored template %s: %v", ErrDataIntegrity, id, err)
	}
	s.cache.Add(id, t)
	return t, nil
}

// Import validates doc and upserts it. Unchanged content (same checksum) is
// left alone; changed content bumps the revision and evicts the cached copy.
// It reports whether a row was written.
func (s *TemplateStore) Import(ctx context.Context, doc *TemplateDocument) (bool, error) {
	if _, err := doc.Compile(); err != nil {
		return false, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode template %s: %w", doc.ID, err)
	}
	sum := sha256.Sum256(raw)
	checksum := hex.EncodeToString(sum[:])

	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.QuestTemplateRecord
		err := tx.Where("id = ?", doc.ID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			changed = true
			return tx.Create(&model.QuestTemplateRecord{
				ID:         doc.ID,
				Name:       doc.Name,
				Definition: raw,
				Checksum:   checksum,
				Revision:   1,
				IsActive:   true,
			}).Error
		case err != nil:
			return err
		case existing.Checksum == checksum && existing.IsActive:
			return nil
		}
		changed = true
		return tx.Model(&existing).Updates(map[string]interface{}{
			"name":       doc.Name,
			"definition": raw,
			"checksum":   checksum,
			"revision":   existing.Revision + 1,
			"is_active":  true,
		}).Error
	})
	if err != nil {
		return false, fmt.Errorf("import template %s: %w", doc.ID, err)
	}
	if changed {
		s.cache.Remove(doc.ID)
		s.logger.Info("quest template imported",
			zap.String("template_id", doc.ID),
			zap.String("checksum", checksum[:12]))
	}
	return changed, nil
}

// Deactivate hides a template from lookups and evicts it from the cache.
func (s *TemplateStore) Deactivate(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Model(&model.QuestTemplateRecord{}).
		Where("id = ?", id).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate template %s: %w", id, err)
	}
	s.cache.Remove(id)
	return nil
}

// Purge drops every cached template.
func (s *TemplateStore) Purge() {
	s.cache.Purge()
}

// Len returns the number of cached templates.
func (s *TemplateStore) Len() int {
	return s.cache.Len()
}

// ActiveIDs lists the ids of all active templates, sorted.
func (s *TemplateStore) ActiveIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.QuestTemplateRecord{}).
		Where("is_active = ?", true).Order("id").Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return ids, nil
}
