package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/akolanti/ProposalAPI/internal/data/store"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var ErrActiveTemplateExists = errors.New("an active template already exists for this section, sub-section and category")

type Loader struct {
	table    store.Table
	logger   *logger_i.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewLoader(table store.Table) *Loader {
	return &Loader{
		table:    table,
		logger:   logger_i.NewLogger("prompt_loader"),
		validate: validator.New(),
		now:      time.Now,
	}
}

// WithClock replaces the clock used to stamp UpdatedAt.
func (l *Loader) WithClock(now func() time.Time) *Loader {
	l.now = now
	return l
}

// Resolve returns the active template for sel. When several match, the most
// recently updated wins and ties go to the lowest id. When none match, or the
// store cannot be read, fallback is returned.
func (l *Loader) Resolve(ctx context.Context, sel Selector, fallback Template) Template {
	log := l.logger.ForContext(ctx)
	templates, err := l.List(ctx)
	if err != nil {
		log.Warn("prompt store unavailable, using default template", "error", err, "subSection", sel.SubSection)
		return fallback
	}

	var best *Template
	matches := 0
	for i := range templates {
		t := templates[i]
		if !t.Matches(sel) {
			continue
		}
		matches++
		if best == nil || t.UpdatedAt.After(best.UpdatedAt) ||
			(t.UpdatedAt.Equal(best.UpdatedAt) && t.ID < best.ID) {
			best = &templates[i]
		}
	}
	if best == nil {
		log.Debug("no active template, using default", "section", sel.Section, "subSection", sel.SubSection, "category", sel.Category)
		return fallback
	}
	if matches > 1 {
		log.Warn("multiple active templates matched, using latest", "matches", matches, "templateId", best.ID)
	}
	return *best
}

func (l *Loader) List(ctx context.Context) ([]Template, error) {
	records, err := l.table.QueryPartition(ctx, Partition)
	if err != nil {
		return nil, err
	}
	templates := make([]Template, 0, len(records))
	for _, r := range records {
		templates = append(templates, fromItem(r.Key.Sort, r.Item))
	}
	return templates, nil
}

func (l *Loader) Get(ctx context.Context, id string) (Template, error) {
	item, err := l.table.Get(ctx, store.Key{Partition: Partition, Sort: id})
	if err != nil {
		return Template{}, err
	}
	return fromItem(id, item), nil
}

// Save validates and writes t, assigning an id when it has none and bumping the
// version of an existing template. Saving an active template is rejected when a
// different active template already covers one of its categories.
func (l *Loader) Save(ctx context.Context, t Template) (Template, error) {
	if err := l.validate.Struct(t); err != nil {
		return Template{}, fmt.Errorf("invalid template: %w", err)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	existing, err := l.List(ctx)
	if err != nil {
		return Template{}, err
	}
	for _, other := range existing {
		if other.ID == t.ID {
			if other.Version >= t.Version {
				t.Version = other.Version + 1
			}
			continue
		}
		if t.conflictsWith(other) {
			return Template{}, fmt.Errorf("%w: %s", ErrActiveTemplateExists, other.ID)
		}
	}
	if t.Version == 0 {
		t.Version = 1
	}
	t.UpdatedAt = l.now().UTC()

	if err := l.table.Put(ctx, store.Key{Partition: Partition, Sort: t.ID}, toItem(t)); err != nil {
		return Template{}, err
	}
	l.logger.ForContext(ctx).Info("prompt template saved", "templateId", t.ID, "subSection", t.SubSection, "version", t.Version)
	return t, nil
}

func (l *Loader) Delete(ctx context.Context, id string) error {
	return l.table.Delete(ctx, store.Key{Partition: Partition, Sort: id})
}

type seedFile struct {
	Templates []Template `yaml:"templates"`
}

// ImportYAML saves every template of a seed file in order and stops at the first
// rejected one.
func (l *Loader) ImportYAML(ctx context.Context, r io.Reader) (int, error) {
	var seed seedFile
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return 0, fmt.Errorf("invalid template file: %w", err)
	}
	for i, t := range seed.Templates {
		if _, err := l.Save(ctx, t); err != nil {
			return i, fmt.Errorf("template %d (%s/%s): %w", i, t.SubSection, t.ID, err)
		}
	}
	return len(seed.Templates), nil
}
