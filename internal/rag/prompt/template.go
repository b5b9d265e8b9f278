package prompt

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/akolanti/ProposalAPI/internal/data/store"
)

const (
	Partition = "PROMPT"

	fieldSection    = "section"
	fieldSubSection = "sub_section"
	fieldCategories = "categories"
	fieldActive     = "active"
	fieldSystem     = "system_prompt"
	fieldUser       = "user_prompt_template"
	fieldOutput     = "output_format"
	fieldVersion    = "version"
	fieldUpdatedAt  = "updated_at"
)

type Template struct {
	ID                 string    `json:"id" yaml:"id"`
	Section            string    `json:"section" yaml:"section" validate:"required"`
	SubSection         string    `json:"sub_section" yaml:"sub_section" validate:"required"`
	Categories         []string  `json:"categories" yaml:"categories" validate:"required,min=1"`
	Active             bool      `json:"active" yaml:"active"`
	SystemPrompt       string    `json:"system_prompt" yaml:"system_prompt"`
	UserPromptTemplate string    `json:"user_prompt_template" yaml:"user_prompt_template" validate:"required"`
	OutputFormat       string    `json:"output_format" yaml:"output_format"`
	Version            int       `json:"version" yaml:"version"`
	UpdatedAt          time.Time `json:"updated_at" yaml:"-"`
}

// Selector is the (section, sub-section, category) triple a stage asks for.
type Selector struct {
	Section    string
	SubSection string
	Category   string
}

func (t Template) Matches(sel Selector) bool {
	return t.Active &&
		t.Section == sel.Section &&
		t.SubSection == sel.SubSection &&
		slices.Contains(t.Categories, sel.Category)
}

// conflictsWith reports whether both templates would be active for a common triple.
func (t Template) conflictsWith(other Template) bool {
	if !t.Active || !other.Active || t.ID == other.ID {
		return false
	}
	if t.Section != other.Section || t.SubSection != other.SubSection {
		return false
	}
	for _, c := range t.Categories {
		if slices.Contains(other.Categories, c) {
			return true
		}
	}
	return false
}

func toItem(t Template) store.Item {
	categories, _ := json.Marshal(t.Categories)
	return store.Item{
		fieldSection:    t.Section,
		fieldSubSection: t.SubSection,
		fieldCategories: string(categories),
		fieldActive:     strconv.FormatBool(t.Active),
		fieldSystem:     t.SystemPrompt,
		fieldUser:       t.UserPromptTemplate,
		fieldOutput:     t.OutputFormat,
		fieldVersion:    strconv.Itoa(t.Version),
		fieldUpdatedAt:  t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromItem(id string, item store.Item) Template {
	t := Template{
		ID:                 id,
		Section:            item[fieldSection],
		SubSection:         item[fieldSubSection],
		SystemPrompt:       item[fieldSystem],
		UserPromptTemplate: item[fieldUser],
		OutputFormat:       item[fieldOutput],
	}
	t.Active, _ = strconv.ParseBool(item[fieldActive])
	t.Version, _ = strconv.Atoi(item[fieldVersion])
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, item[fieldUpdatedAt])

	raw := item[fieldCategories]
	if err := json.Unmarshal([]byte(raw), &t.Categories); err != nil && raw != "" {
		// older rows stored a comma separated list
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				t.Categories = append(t.Categories, c)
			}
		}
	}
	return t
}
