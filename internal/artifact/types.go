// Package artifact defines the typed review artifacts produced by pipeline
// stages, their approval lifecycle, and the filesystem store that persists
// one current version per (project, artifact type) pair.
package artifact

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"slrforge/internal/fault"
	"slrforge/internal/query"
)

// Type names one persisted artifact kind. The string form doubles as the
// on-disk file name under <project>/artifacts/.
type Type string

const (
	TypeProjectContext       Type = "ProjectContext"
	TypeProblemFraming       Type = "ProblemFraming"
	TypeConceptModel         Type = "ConceptModel"
	TypeResearchQuestionSet  Type = "ResearchQuestionSet"
	TypeSearchConceptBlocks  Type = "SearchConceptBlocks"
	TypeDatabaseQueryPlan    Type = "DatabaseQueryPlan"
	TypeSearchResults        Type = "SearchResults"
	TypeScreeningCriteria    Type = "ScreeningCriteria"
	TypeStrategyExportBundle Type = "StrategyExportBundle"
)

// AllTypes returns every artifact type in pipeline order.
func AllTypes() []Type {
	return []Type{
		TypeProjectContext,
		TypeProblemFraming,
		TypeConceptModel,
		TypeResearchQuestionSet,
		TypeSearchConceptBlocks,
		TypeDatabaseQueryPlan,
		TypeSearchResults,
		TypeScreeningCriteria,
		TypeStrategyExportBundle,
	}
}

// ApprovalStatus tracks where an artifact sits in the review lifecycle.
type ApprovalStatus string

const (
	StatusDraft             ApprovalStatus = "draft"
	StatusUnderReview       ApprovalStatus = "under_review"
	StatusApproved          ApprovalStatus = "approved"
	StatusApprovedWithNotes ApprovalStatus = "approved_with_notes"
	StatusRequiresRevision  ApprovalStatus = "requires_revision"
)

// Approved reports whether downstream stages may consume the artifact.
// approved_with_notes gates exactly like approved.
func (s ApprovalStatus) Approved() bool {
	return s == StatusApproved || s == StatusApprovedWithNotes
}

// Valid reports whether s is one of the recognized lifecycle states.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusUnderReview, StatusApproved, StatusApprovedWithNotes, StatusRequiresRevision:
		return true
	}
	return false
}

// Generator modes recorded in ModelMetadata.
const (
	ModeLLM           = "llm"
	ModeDeterministic = "deterministic"
	ModeHybrid        = "hybrid"
	ModeMock          = "mock"
)

// ModelMetadata records how a generated artifact value was produced.
type ModelMetadata struct {
	ModelName     string    `json:"model_name" validate:"required"`
	Mode          string    `json:"mode" validate:"required,oneof=llm deterministic hybrid mock"`
	PromptVersion string    `json:"prompt_version,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
	Notes         string    `json:"notes,omitempty"`
}

// Header carries the fields shared by every downstream artifact. Concrete
// artifact types embed it; ProjectContext is the root and declares its own
// fields because its identifier is the project id itself.
type Header struct {
	ProjectID     string         `json:"project_id" validate:"required"`
	Status        ApprovalStatus `json:"status" validate:"required,oneof=draft under_review approved approved_with_notes requires_revision"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ModelMetadata *ModelMetadata `json:"model_metadata,omitempty"`
	UserNotes     string         `json:"user_notes,omitempty"`
}

func (h *Header) ProjectRef() string            { return h.ProjectID }
func (h *Header) CurrentStatus() ApprovalStatus { return h.Status }
func (h *Header) SetStatus(s ApprovalStatus)    { h.Status = s }
func (h *Header) SetUserNotes(notes string)     { h.UserNotes = notes }

// Touch stamps the modification time, and the creation time on first save.
func (h *Header) Touch(now time.Time) {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
}

// Artifact is the minimal surface the store and the pipeline controller need
// from any persisted artifact. Everything else goes through the concrete
// types via a type switch at the boundary.
type Artifact interface {
	Type() Type
	ProjectRef() string
	CurrentStatus() ApprovalStatus
	SetStatus(ApprovalStatus)
	SetUserNotes(string)
	Touch(now time.Time)
}

// NewProjectID mints the identifier shared by a project's artifact subtree.
func NewProjectID() string {
	return uuid.NewString()
}

// ProjectContext is the root artifact; its ID is the project identifier for
// every downstream artifact.
type ProjectContext struct {
	ID            string         `json:"id" validate:"required"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Discipline    string         `json:"discipline,omitempty"`
	Keywords      []string       `json:"keywords,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Status        ApprovalStatus `json:"status" validate:"required,oneof=draft under_review approved approved_with_notes requires_revision"`
	ModelMetadata *ModelMetadata `json:"model_metadata,omitempty"`
	UserNotes     string         `json:"user_notes,omitempty"`
}

func (p *ProjectContext) Type() Type                    { return TypeProjectContext }
func (p *ProjectContext) ProjectRef() string            { return p.ID }
func (p *ProjectContext) CurrentStatus() ApprovalStatus { return p.Status }
func (p *ProjectContext) SetStatus(s ApprovalStatus)    { p.Status = s }
func (p *ProjectContext) SetUserNotes(notes string)     { p.UserNotes = notes }
func (p *ProjectContext) Touch(now time.Time) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// ProblemFraming sharpens the raw idea into a statement, goals and scope.
type ProblemFraming struct {
	Header
	ProblemStatement string   `json:"problem_statement"`
	Goals            []string `json:"goals,omitempty"`
	ScopeIn          []string `json:"scope_in,omitempty"`
	ScopeOut         []string `json:"scope_out,omitempty"`
	Stakeholders     []string `json:"stakeholders,omitempty"`
	ResearchGap      string   `json:"research_gap,omitempty"`
	CritiqueReport   string   `json:"critique_report,omitempty"`
}

func (*ProblemFraming) Type() Type { return TypeProblemFraming }

// Concept categories follow the PICO-and-friends framing vocabulary.
const (
	ConceptPopulation   = "population"
	ConceptIntervention = "intervention"
	ConceptComparison   = "comparison"
	ConceptOutcome      = "outcome"
	ConceptMethod       = "method"
	ConceptContext      = "context"
	ConceptOther        = "other"
)

type Concept struct {
	ID          string `json:"id" validate:"required"`
	Label       string `json:"label" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=population intervention comparison outcome method context other"`
	Description string `json:"description,omitempty"`
}

type ConceptRelation struct {
	SourceID     string `json:"source_id" validate:"required"`
	TargetID     string `json:"target_id" validate:"required"`
	RelationType string `json:"relation_type" validate:"required"`
}

// ConceptModel holds the named concepts of the review and how they relate.
type ConceptModel struct {
	Header
	Concepts  []Concept         `json:"concepts" validate:"dive"`
	Relations []ConceptRelation `json:"relations,omitempty" validate:"dive"`
}

func (*ConceptModel) Type() Type { return TypeConceptModel }

// ConceptByID returns the concept with the given id, if present.
func (m *ConceptModel) ConceptByID(id string) (Concept, bool) {
	for _, c := range m.Concepts {
		if c.ID == id {
			return c, true
		}
	}
	return Concept{}, false
}

// Research question categories.
const (
	QuestionDescriptive = "descriptive"
	QuestionExplanatory = "explanatory"
	QuestionEvaluative  = "evaluative"
	QuestionDesign      = "design"
	QuestionPredictive  = "predictive"
)

// Question priorities.
const (
	PriorityMust = "must"
	PriorityNice = "nice"
)

type ResearchQuestion struct {
	ID                 string   `json:"id" validate:"required"`
	Text               string   `json:"text" validate:"required"`
	Type               string   `json:"type" validate:"required,oneof=descriptive explanatory evaluative design predictive"`
	LinkedConceptIDs   []string `json:"linked_concept_ids,omitempty"`
	Priority           string   `json:"priority" validate:"required,oneof=must nice"`
	MethodologicalLens string   `json:"methodological_lens,omitempty"`
}

// ResearchQuestionSet lists the questions the review will answer.
type ResearchQuestionSet struct {
	Header
	Questions []ResearchQuestion `json:"questions" validate:"dive"`
}

func (*ResearchQuestionSet) Type() Type { return TypeResearchQuestionSet }

type SearchBlock struct {
	ID            string   `json:"id" validate:"required"`
	Label         string   `json:"label" validate:"required"`
	Description   string   `json:"description,omitempty"`
	TermsIncluded []string `json:"terms_included" validate:"min=1"`
	TermsExcluded []string `json:"terms_excluded,omitempty"`
}

// SearchConceptBlocks groups synonyms per concept for query synthesis.
type SearchConceptBlocks struct {
	Header
	Blocks []SearchBlock `json:"blocks" validate:"dive"`
}

func (*SearchConceptBlocks) Type() Type { return TypeSearchConceptBlocks }

// BlockByID returns the block with the given id, if present.
func (b *SearchConceptBlocks) BlockByID(id string) (SearchBlock, bool) {
	for _, blk := range b.Blocks {
		if blk.ID == id {
			return blk, true
		}
	}
	return SearchBlock{}, false
}

type DatabaseQuery struct {
	ID                 string          `json:"id" validate:"required"`
	DatabaseName       string          `json:"database_name" validate:"required"`
	QueryBlocks        []string        `json:"query_blocks,omitempty"`
	BooleanQueryString string          `json:"boolean_query_string" validate:"required"`
	Notes              string          `json:"notes,omitempty"`
	HitCountEstimate   int             `json:"hit_count_estimate,omitempty"`
	ComplexityAnalysis *query.Analysis `json:"complexity_analysis,omitempty"`
}

// DatabaseQueryPlan carries one compiled Boolean query per target database.
type DatabaseQueryPlan struct {
	Header
	Queries []DatabaseQuery `json:"queries" validate:"min=1,dive"`
}

func (*DatabaseQueryPlan) Type() Type { return TypeDatabaseQueryPlan }

// QueryFor returns the compiled query for a database, if present.
func (p *DatabaseQueryPlan) QueryFor(database string) (DatabaseQuery, bool) {
	for _, q := range p.Queries {
		if q.DatabaseName == database {
			return q, true
		}
	}
	return DatabaseQuery{}, false
}

type DeduplicationStats struct {
	OriginalCount     int     `json:"original_count" validate:"gte=0"`
	DuplicatesRemoved int     `json:"duplicates_removed" validate:"gte=0"`
	Rate              float64 `json:"rate" validate:"gte=0,lte=1"`
}

// SearchResults is metadata only. Documents live in side files named by
// ResultFilePaths; the artifact never embeds them.
type SearchResults struct {
	Header
	TotalResults         int                `json:"total_results" validate:"gte=0"`
	DeduplicatedCount    int                `json:"deduplicated_count" validate:"gte=0"`
	DatabasesSearched    []string           `json:"databases_searched" validate:"min=1"`
	ResultFilePaths      []string           `json:"result_file_paths"`
	DeduplicationStats   DeduplicationStats `json:"deduplication_stats"`
	ExecutionTimeSeconds float64            `json:"execution_time_seconds" validate:"gte=0"`
}

func (*SearchResults) Type() Type { return TypeSearchResults }

// ScreeningCriteria lists inclusion and exclusion rules for title/abstract
// screening, derived deterministically from upstream artifacts.
type ScreeningCriteria struct {
	Header
	InclusionCriteria []string `json:"inclusion_criteria"`
	ExclusionCriteria []string `json:"exclusion_criteria"`
}

func (*ScreeningCriteria) Type() Type { return TypeScreeningCriteria }

// StrategyExportBundle records where the protocol exports were written.
type StrategyExportBundle struct {
	Header
	ExportedFiles []string `json:"exported_files" validate:"min=1"`
	Notes         string   `json:"notes,omitempty"`
}

func (*StrategyExportBundle) Type() Type { return TypeStrategyExportBundle }

// New returns a zero value of the concrete type behind t, ready for JSON
// decoding. The type switch here is the single decode dispatch point.
func New(t Type) (Artifact, error) {
	switch t {
	case TypeProjectContext:
		return &ProjectContext{}, nil
	case TypeProblemFraming:
		return &ProblemFraming{}, nil
	case TypeConceptModel:
		return &ConceptModel{}, nil
	case TypeResearchQuestionSet:
		return &ResearchQuestionSet{}, nil
	case TypeSearchConceptBlocks:
		return &SearchConceptBlocks{}, nil
	case TypeDatabaseQueryPlan:
		return &DatabaseQueryPlan{}, nil
	case TypeSearchResults:
		return &SearchResults{}, nil
	case TypeScreeningCriteria:
		return &ScreeningCriteria{}, nil
	case TypeStrategyExportBundle:
		return &StrategyExportBundle{}, nil
	}
	return nil, errUnknownType(string(t))
}

func errUnknownType(name string) error {
	known := make([]string, 0, len(AllTypes()))
	for _, t := range AllTypes() {
		known = append(known, string(t))
	}
	sort.Strings(known)
	return fault.NotFound("unknown artifact type %q (known: %s)", name, strings.Join(known, ", "))
}

// ParseType resolves a user-supplied artifact type name. Matching ignores
// case and the separators commonly typed on the CLI, so "concept_model",
// "concept-model" and "ConceptModel" all resolve to TypeConceptModel.
func ParseType(name string) (Type, error) {
	want := normalizeTypeName(name)
	for _, t := range AllTypes() {
		if normalizeTypeName(string(t)) == want {
			return t, nil
		}
	}
	return "", errUnknownType(name)
}

func normalizeTypeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '.':
			return -1
		}
		return r
	}, name)
}
