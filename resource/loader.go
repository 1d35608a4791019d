package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kasuganosora/questengine/game/quest"
	"gopkg.in/yaml.v3"
)

// ---- ResourceLoader ----

// ResourceLoader reads quest content from a directory of YAML files. A file
// may hold several templates separated by "---".
type ResourceLoader struct {
	ContentPath string

	Documents map[string]*quest.TemplateDocument
	Templates quest.MapTemplates
	// Sources maps template id to the file it came from.
	Sources map[string]string
	// Warnings collects non-fatal findings, such as unlocks pointing at
	// templates that are not part of the content set.
	Warnings []string

	files []string
}

// NewLoader creates a ResourceLoader for the given content directory.
func NewLoader(contentPath string) *ResourceLoader {
	return &ResourceLoader{
		ContentPath: contentPath,
		Documents:   make(map[string]*quest.TemplateDocument),
		Templates:   make(quest.MapTemplates),
		Sources:     make(map[string]string),
	}
}

// Load reads and validates every template. Any invalid template fails the
// whole load so a half-valid content set is never served.
func (rl *ResourceLoader) Load() error {
	loaders := []func() error{
		rl.scanFiles,
		rl.loadDocuments,
		rl.checkUnlocks,
	}
	for _, fn := range loaders {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

// Template implements quest.TemplateSource over the loaded content.
func (rl *ResourceLoader) Template(ctx context.Context, id string) (*quest.Template, error) {
	return rl.Templates.Template(ctx, id)
}

// IDs returns the loaded template ids in sorted order.
func (rl *ResourceLoader) IDs() []string {
	ids := make([]string, 0, len(rl.Documents))
	for id := range rl.Documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (rl *ResourceLoader) scanFiles() error {
	root := filepath.Clean(rl.ContentPath)
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("quest content dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("quest content dir %s is not a directory", root)
	}
	rl.files = rl.files[:0]
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			rl.files = append(rl.files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(rl.files)
	return nil
}

func (rl *ResourceLoader) loadDocuments() error {
	for _, path := range rl.files {
		docs, err := decodeFile(path)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if prev, dup := rl.Sources[doc.ID]; dup {
				return fmt.Errorf("%w: template %q defined in both %s and %s",
					quest.ErrInvalidContent, doc.ID, prev, path)
			}
			tpl, err := doc.Compile()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			rl.Documents[doc.ID] = doc
			rl.Templates[doc.ID] = tpl
			rl.Sources[doc.ID] = path
		}
	}
	return nil
}

func decodeFile(path string) ([]*quest.TemplateDocument, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	var out []*quest.TemplateDocument
	for {
		var doc quest.TemplateDocument
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", quest.ErrInvalidContent, path, err)
		}
		if doc.ID == "" && len(doc.Nodes) == 0 {
			continue // empty document
		}
		d := doc
		out = append(out, &d)
	}
	return out, nil
}

func (rl *ResourceLoader) checkUnlocks() error {
	rl.Warnings = rl.Warnings[:0]
	for _, id := range rl.IDs() {
		for _, next := range rl.Documents[id].UnlockedQuests {
			if _, ok := rl.Documents[next]; !ok {
				rl.Warnings = append(rl.Warnings,
					fmt.Sprintf("template %s unlocks unknown template %s", id, next))
			}
		}
	}
	return nil
}

// Importer persists template documents; *quest.TemplateStore implements it.
type Importer interface {
	Import(ctx context.Context, doc *quest.TemplateDocument) (bool, error)
}

// Sync imports every loaded document and returns how many rows changed.
func (rl *ResourceLoader) Sync(ctx context.Context, dst Importer) (int, error) {
	changed := 0
	for _, id := range rl.IDs() {
		ok, err := dst.Import(ctx, rl.Documents[id])
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}
