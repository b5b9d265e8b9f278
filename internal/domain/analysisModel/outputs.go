// Package analysisModel holds one fixed schema per pipeline stage. Every payload
// coming from a model or from a stored record goes through Normalize before it is
// decoded, so consumers never deal with wrapper objects.
package analysisModel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/akolanti/ProposalAPI/internal/domain/jobModel"
)

type Output interface {
	Stage() jobModel.AnalysisType
	// Context is the text later stages feed into their prompts.
	Context() string
}

type RfpAnalysis struct {
	Narrative          Text                       `json:"narrative"`
	Summary            Text                       `json:"summary,omitempty"`
	Donor              Text                       `json:"donor,omitempty"`
	Objectives         TextList                   `json:"objectives,omitempty"`
	Eligibility        TextList                   `json:"eligibility,omitempty"`
	EvaluationCriteria TextList                   `json:"evaluation_criteria,omitempty"`
	Requirements       TextList                   `json:"requirements,omitempty"`
	Deadlines          TextList                   `json:"deadlines,omitempty"`
	Budget             Text                       `json:"budget,omitempty"`
	Raw                string                     `json:"raw,omitempty"`
	Extra              map[string]json.RawMessage `json:"extra,omitempty"`
}

type ReferenceProposalsAnalysis struct {
	Narrative     Text                       `json:"narrative"`
	Structure     Text                       `json:"structure,omitempty"`
	WritingStyle  Text                       `json:"writing_style,omitempty"`
	Strengths     TextList                   `json:"strengths,omitempty"`
	Relevance     Text                       `json:"relevance,omitempty"`
	BestPractices TextList                   `json:"best_practices,omitempty"`
	Documents     []string                   `json:"documents,omitempty"`
	Raw           string                     `json:"raw,omitempty"`
	Extra         map[string]json.RawMessage `json:"extra,omitempty"`
}

type ExistingWorkAnalysis struct {
	Narrative     Text                       `json:"narrative"`
	Capabilities  TextList                   `json:"capabilities,omitempty"`
	Outcomes      TextList                   `json:"outcomes,omitempty"`
	Partners      TextList                   `json:"partners,omitempty"`
	Relevance     Text                       `json:"relevance,omitempty"`
	BestPractices TextList                   `json:"best_practices,omitempty"`
	Documents     []string                   `json:"documents,omitempty"`
	Raw           string                     `json:"raw,omitempty"`
	Extra         map[string]json.RawMessage `json:"extra,omitempty"`
}

type ConceptAnalysis struct {
	Narrative       Text                       `json:"narrative"`
	Alignment       Text                       `json:"alignment,omitempty"`
	Strengths       TextList                   `json:"strengths,omitempty"`
	Gaps            TextList                   `json:"gaps,omitempty"`
	Recommendations TextList                   `json:"recommendations,omitempty"`
	Sections        Sections                   `json:"sections,omitempty"`
	Raw             string                     `json:"raw,omitempty"`
	Extra           map[string]json.RawMessage `json:"extra,omitempty"`
}

type ConceptDocument struct {
	Narrative Text                       `json:"narrative"`
	Title     Text                       `json:"title,omitempty"`
	Sections  Sections                   `json:"sections,omitempty"`
	Raw       string                     `json:"raw,omitempty"`
	Extra     map[string]json.RawMessage `json:"extra,omitempty"`
}

type StructureWorkplan struct {
	Narrative       Text                       `json:"narrative"`
	ProposalOutline Sections                   `json:"proposal_outline,omitempty"`
	Workplan        TextList                   `json:"workplan,omitempty"`
	Timeline        Text                       `json:"timeline,omitempty"`
	Raw             string                     `json:"raw,omitempty"`
	Extra           map[string]json.RawMessage `json:"extra,omitempty"`
}

type DraftFeedback struct {
	Narrative         Text                       `json:"narrative"`
	OverallAssessment Text                       `json:"overall_assessment,omitempty"`
	SectionFeedback   Sections                   `json:"section_feedback,omitempty"`
	Improvements      TextList                   `json:"improvements,omitempty"`
	Raw               string                     `json:"raw,omitempty"`
	Extra             map[string]json.RawMessage `json:"extra,omitempty"`
}

func (RfpAnalysis) Stage() jobModel.AnalysisType { return jobModel.StageRFP }
func (ReferenceProposalsAnalysis) Stage() jobModel.AnalysisType {
	return jobModel.StageReferenceProposals
}
func (ExistingWorkAnalysis) Stage() jobModel.AnalysisType { return jobModel.StageExistingWork }
func (ConceptAnalysis) Stage() jobModel.AnalysisType      { return jobModel.StageConcept }
func (ConceptDocument) Stage() jobModel.AnalysisType      { return jobModel.StageConceptDocument }
func (StructureWorkplan) Stage() jobModel.AnalysisType    { return jobModel.StageStructureWorkplan }
func (DraftFeedback) Stage() jobModel.AnalysisType        { return jobModel.StageDraftFeedback }

func (o RfpAnalysis) Context() string                { return contextOf(o, o.Narrative, o.Raw) }
func (o ReferenceProposalsAnalysis) Context() string { return contextOf(o, o.Narrative, o.Raw) }
func (o ExistingWorkAnalysis) Context() string       { return contextOf(o, o.Narrative, o.Raw) }
func (o ConceptAnalysis) Context() string            { return contextOf(o, o.Narrative, o.Raw) }
func (o StructureWorkplan) Context() string          { return contextOf(o, o.Narrative, o.Raw) }
func (o DraftFeedback) Context() string              { return contextOf(o, o.Narrative, o.Raw) }

// Context of a generated document is the document itself.
func (o ConceptDocument) Context() string {
	if o.Narrative != "" {
		return string(o.Narrative)
	}
	return contextOf(o, o.Narrative, o.Raw)
}

// SearchQuery is the text used to find similar reference proposals.
func (o RfpAnalysis) SearchQuery() string {
	q := string(o.Summary)
	if q == "" {
		q = string(o.Narrative)
	}
	if q == "" {
		q = o.Raw
	}
	runes := []rune(q)
	if len(runes) > 2000 {
		q = string(runes[:2000])
	}
	return q
}

// contextOf prefers the structured payload as indented JSON and falls back to the
// raw model text when nothing was parsed.
func contextOf(o Output, narrative Text, raw string) string {
	if narrative == "" && raw != "" {
		return raw
	}
	b, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return string(narrative)
	}
	return string(b)
}

func New(stage jobModel.AnalysisType) (Output, error) {
	switch stage {
	case jobModel.StageRFP:
		return &RfpAnalysis{}, nil
	case jobModel.StageReferenceProposals:
		return &ReferenceProposalsAnalysis{}, nil
	case jobModel.StageExistingWork:
		return &ExistingWorkAnalysis{}, nil
	case jobModel.StageConcept:
		return &ConceptAnalysis{}, nil
	case jobModel.StageConceptDocument:
		return &ConceptDocument{}, nil
	case jobModel.StageStructureWorkplan:
		return &StructureWorkplan{}, nil
	case jobModel.StageDraftFeedback:
		return &DraftFeedback{}, nil
	}
	return nil, fmt.Errorf("%w: %s", jobModel.ErrUnknownAnalysisType, stage)
}

// Decode normalizes raw and decodes it into the stage's schema.
func Decode(stage jobModel.AnalysisType, raw []byte) (Output, error) {
	out, err := New(stage)
	if err != nil {
		return nil, err
	}
	normalized := Normalize(stage, raw)
	if err := json.Unmarshal(normalized, out); err != nil {
		return nil, fmt.Errorf("decoding %s output: %w", stage, err)
	}
	keepUnknown(out, normalized)
	return out, nil
}

// DecodeAs is Decode for a caller that knows the concrete type.
func DecodeAs[T any](stage jobModel.AnalysisType, raw []byte) (T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, fmt.Errorf("%w: %s has no output", jobModel.ErrPrerequisiteMissing, stage)
	}
	if err := json.Unmarshal(Normalize(stage, raw), &out); err != nil {
		return out, fmt.Errorf("decoding %s output: %w", stage, err)
	}
	return out, nil
}

// keepUnknown moves top-level keys the stage schema does not declare into Extra,
// so a model answer with unexpected field names is never dropped.
func keepUnknown(out Output, normalized []byte) {
	var all map[string]json.RawMessage
	if json.Unmarshal(normalized, &all) != nil || len(all) == 0 {
		return
	}
	v := reflect.ValueOf(out).Elem()
	extraField := v.FieldByName("Extra")
	if !extraField.IsValid() {
		return
	}

	known := map[string]bool{}
	for i := 0; i < v.NumField(); i++ {
		name, _, _ := strings.Cut(v.Type().Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			known[strings.ToLower(name)] = true
		}
	}

	extra, _ := extraField.Interface().(map[string]json.RawMessage)
	for key, value := range all {
		if known[strings.ToLower(key)] {
			continue
		}
		if extra == nil {
			extra = map[string]json.RawMessage{}
		}
		if _, ok := extra[key]; !ok {
			extra[key] = value
		}
	}
	if extra != nil {
		extraField.Set(reflect.ValueOf(extra))
	}
}
