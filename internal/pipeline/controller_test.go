package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"slrforge/internal/artifact"
	"slrforge/internal/config"
	"slrforge/internal/dedup"
	"slrforge/internal/export"
	"slrforge/internal/fault"
	"slrforge/internal/llm"
	"slrforge/internal/search"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeProvider struct {
	name string
	docs []search.Document
	err  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, query string, maxResults int) ([]search.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

// newTestController wires a controller over a temp store. A nil drafter
// selects the deterministic backend; providers back the query-execution
// stage.
func newTestController(t *testing.T, drafter llm.Drafter, providers ...search.Provider) (*Controller, *artifact.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseDir = t.TempDir()
	cfg.Executor.PerCallTimeoutSeconds = 5
	cfg.Executor.OverallTimeoutSeconds = 10

	store, err := artifact.NewStore(cfg.BaseDir)
	require.NoError(t, err)

	if drafter == nil {
		drafter = llm.Disabled{}
	}
	reg := search.EmptyRegistry()
	for _, p := range providers {
		reg.Add(p)
	}
	exec := search.NewExecutor(store, reg, dedup.New(), nil, cfg)
	return NewController(cfg, store, drafter, exec, export.NewBundler(store)), store
}

func approve(t *testing.T, ctl *Controller, projectID string, tp artifact.Type) {
	t.Helper()
	_, err := ctl.ApproveArtifact(projectID, tp, nil, "", "")
	require.NoError(t, err)
}

// advancePastQueryPlan drives a fresh project from the raw idea through an
// approved DatabaseQueryPlan, approving every draft along the way.
func advancePastQueryPlan(t *testing.T, ctl *Controller, idea, databases string) string {
	t.Helper()
	ctx := context.Background()

	res, err := ctl.StartProject(ctx, idea)
	require.NoError(t, err)
	require.NotNil(t, res.Draft, "setup must produce a ProjectContext draft: %v", res.ValidationErrors)
	projectID := res.Draft.ProjectRef()
	approve(t, ctl, projectID, artifact.TypeProjectContext)

	res, err = ctl.RunStage(ctx, StageProblemFraming, projectID, nil)
	require.NoError(t, err)
	require.Contains(t, res.Extra, artifact.TypeConceptModel, "framing must draft the concept model alongside")
	approve(t, ctl, projectID, artifact.TypeProblemFraming)
	approve(t, ctl, projectID, artifact.TypeConceptModel)

	_, err = ctl.RunStage(ctx, StageResearchQuestions, projectID, nil)
	require.NoError(t, err)
	approve(t, ctl, projectID, artifact.TypeResearchQuestionSet)

	_, err = ctl.RunStage(ctx, StageConceptExpansion, projectID, nil)
	require.NoError(t, err)
	approve(t, ctl, projectID, artifact.TypeSearchConceptBlocks)

	res, err = ctl.RunStage(ctx, StageQueryPlan, projectID, map[string]string{"databases": databases})
	require.NoError(t, err)
	require.False(t, res.Failed(), "plan synthesis failed: %v", res.ValidationErrors)
	approve(t, ctl, projectID, artifact.TypeDatabaseQueryPlan)
	return projectID
}

func readExportFile(t *testing.T, bundle *artifact.StrategyExportBundle, name string) string {
	t.Helper()
	for _, path := range bundle.ExportedFiles {
		if filepath.Base(path) == name {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			return string(data)
		}
	}
	t.Fatalf("bundle has no %s (files: %v)", name, bundle.ExportedFiles)
	return ""
}

// TestPipelineEndToEnd walks the whole review: idea to exported protocol,
// approving each draft in order, with real search execution against fakes.
func TestPipelineEndToEnd(t *testing.T) {
	shared := search.Document{Title: "Sampling-based hallucination detection", Year: 2023, DOI: "10.1/a", Provider: "arxiv"}
	arxiv := &fakeProvider{name: "arxiv", docs: []search.Document{shared}}
	openalex := &fakeProvider{name: "openalex", docs: []search.Document{
		{Title: "Sampling-based hallucination detection", Year: 2023, DOI: "10.1/a", Provider: "openalex"},
		{Title: "Retrieval grounding reduces fabricated citations", Year: 2024, DOI: "10.1/b", Provider: "openalex"},
	}}

	ctl, store := newTestController(t, nil, arxiv, openalex)
	ctx := context.Background()

	projectID := advancePastQueryPlan(t, ctl, "Systematic review of LLM hallucination mitigation", "arxiv, openalex, pubmed")

	pc, err := store.LoadProject(projectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"llm", "hallucination", "mitigation"}, pc.Keywords)
	assert.Equal(t, artifact.ModeDeterministic, pc.ModelMetadata.Mode)

	plan, err := store.Load(projectID, artifact.TypeDatabaseQueryPlan)
	require.NoError(t, err)
	queries := plan.(*artifact.DatabaseQueryPlan).Queries
	require.Len(t, queries, 3)
	assert.Equal(t, "arxiv", queries[0].DatabaseName)
	assert.Equal(t, "openalex", queries[1].DatabaseName)
	assert.Equal(t, "pubmed", queries[2].DatabaseName)
	for _, q := range queries {
		assert.NotEmpty(t, q.BooleanQueryString)
		require.NotNil(t, q.ComplexityAnalysis)
		assert.Positive(t, q.ComplexityAnalysis.TotalTerms)
	}

	ov, err := ctl.GetProject(projectID)
	require.NoError(t, err)
	assert.Equal(t, StageQueryExecution, ov.CurrentStage)

	res, err := ctl.RunStage(ctx, StageQueryExecution, projectID, nil)
	require.NoError(t, err)
	require.False(t, res.Failed())
	sr := res.Draft.(*artifact.SearchResults)
	assert.Equal(t, 3, sr.TotalResults)
	assert.Equal(t, 2, sr.DeduplicatedCount, "the shared DOI collapses")
	assert.Equal(t, []string{"arxiv", "openalex"}, sr.DatabasesSearched)
	assert.Len(t, sr.ResultFilePaths, 3, "two provider files plus the merged file")
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "syntax-only", "pubmed has no executable provider")
	approve(t, ctl, projectID, artifact.TypeSearchResults)

	// Export directly after execution; screening has not run yet.
	res, err = ctl.RunStage(ctx, StageStrategyExport, projectID, nil)
	require.NoError(t, err)
	require.False(t, res.Failed())
	bundle := res.Draft.(*artifact.StrategyExportBundle)
	require.Len(t, bundle.ExportedFiles, 4)

	protocol := readExportFile(t, bundle, export.ProtocolFileName)
	framing, err := store.Load(projectID, artifact.TypeProblemFraming)
	require.NoError(t, err)
	assert.Contains(t, protocol, framing.(*artifact.ProblemFraming).ProblemStatement)

	qs, err := store.Load(projectID, artifact.TypeResearchQuestionSet)
	require.NoError(t, err)
	for _, q := range qs.(*artifact.ResearchQuestionSet).Questions {
		assert.Contains(t, protocol, q.Text)
	}
	for _, q := range queries {
		assert.Contains(t, protocol, "### "+q.DatabaseName)
		assert.Contains(t, protocol, q.BooleanQueryString)
	}
	assert.Contains(t, protocol, "## Search Results Summary")
	assert.NotContains(t, protocol, "## Eligibility Criteria", "screening has not been approved")

	csv := readExportFile(t, bundle, export.CSVFileName)
	assert.Contains(t, csv, "Sampling-based hallucination detection")
	assert.Contains(t, csv, "Retrieval grounding reduces fabricated citations")

	// Screening joins the protocol once approved.
	res, err = ctl.RunStage(ctx, StageScreening, projectID, nil)
	require.NoError(t, err)
	require.False(t, res.Failed())
	approve(t, ctl, projectID, artifact.TypeScreeningCriteria)

	res, err = ctl.RunStage(ctx, StageStrategyExport, projectID, nil)
	require.NoError(t, err)
	protocol = readExportFile(t, res.Draft.(*artifact.StrategyExportBundle), export.ProtocolFileName)
	assert.Contains(t, protocol, "## Eligibility Criteria")
	assert.Contains(t, protocol, "Peer-reviewed primary studies")
}

func TestStartProjectRequiresIdea(t *testing.T) {
	ctl, _ := newTestController(t, nil)

	res, err := ctl.StartProject(context.Background(), "   ")
	require.NoError(t, err, "a rejected idea is a draft-level outcome, not an operation error")
	assert.True(t, res.Failed())
	assert.Nil(t, res.Draft)
	require.NotEmpty(t, res.ValidationErrors)
	assert.Contains(t, res.ValidationErrors[0], "research idea is required")

	projects, err := ctl.ListProjects()
	require.NoError(t, err)
	assert.Empty(t, projects, "nothing may be persisted for a rejected idea")
}

func TestStartProjectDraftAwaitsReview(t *testing.T) {
	ctl, store := newTestController(t, nil)

	res, err := ctl.StartProject(context.Background(), "Systematic review of LLM hallucination mitigation")
	require.NoError(t, err)
	require.NotNil(t, res.Draft)
	assert.Equal(t, artifact.StatusDraft, res.Draft.CurrentStatus())
	require.NotEmpty(t, res.Prompts)
	assert.Contains(t, res.Prompts[0], "approve")

	pc, err := store.LoadProject(res.Draft.ProjectRef())
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusDraft, pc.Status)
	assert.False(t, pc.CreatedAt.IsZero(), "the store stamps timestamps on save")
}

func TestRunStageGateBlocksUntilApproval(t *testing.T) {
	ctl, store := newTestController(t, nil)
	ctx := context.Background()

	res, err := ctl.StartProject(ctx, "Systematic review of LLM hallucination mitigation")
	require.NoError(t, err)
	projectID := res.Draft.ProjectRef()

	_, err = ctl.RunStage(ctx, StageProblemFraming, projectID, nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindPreconditionFailed))
	fe, ok := fault.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{string(artifact.TypeProjectContext)}, fe.Missing)
	assert.False(t, store.Exists(projectID, artifact.TypeProblemFraming), "a failed gate must write nothing")

	_, err = ctl.RunStage(ctx, StageStrategyExport, projectID, nil)
	fe, ok = fault.As(err)
	require.True(t, ok)
	assert.Len(t, fe.Missing, 6, "the gate reports every missing approval at once")

	approve(t, ctl, projectID, artifact.TypeProjectContext)
	_, err = ctl.RunStage(ctx, StageProblemFraming, projectID, nil)
	assert.NoError(t, err)
}

func TestRunStageUnknownName(t *testing.T) {
	ctl, _ := newTestController(t, nil)

	_, err := ctl.RunStage(context.Background(), "alchemy", "p1", nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindValidation))
	assert.Contains(t, err.Error(), "unknown stage")
	assert.Contains(t, err.Error(), StageProblemFraming, "the error lists the known stages")
}

func TestRunStageUnknownProject(t *testing.T) {
	ctl, _ := newTestController(t, nil)

	_, err := ctl.RunStage(context.Background(), StageProblemFraming, "ghost", nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestApproveArtifactAppliesEdits(t *testing.T) {
	ctl, store := newTestController(t, nil)

	res, err := ctl.StartProject(context.Background(), "Systematic review of LLM hallucination mitigation")
	require.NoError(t, err)
	projectID := res.Draft.ProjectRef()

	edits := json.RawMessage(`{
		"title": "Hallucination Mitigation for LLMs: A Systematic Review",
		"keywords": ["llm", "hallucination", "mitigation", "factuality"]
	}`)
	next, err := ctl.ApproveArtifact(projectID, artifact.TypeProjectContext, edits, artifact.StatusApprovedWithNotes, "tightened the title")
	require.NoError(t, err)
	assert.Equal(t, []string{StageProblemFraming}, next)

	pc, err := store.LoadProject(projectID)
	require.NoError(t, err)
	assert.Equal(t, "Hallucination Mitigation for LLMs: A Systematic Review", pc.Title)
	assert.Contains(t, pc.Keywords, "factuality")
	assert.Equal(t, artifact.StatusApprovedWithNotes, pc.Status)
	assert.Equal(t, "tightened the title", pc.UserNotes)
	assert.NotEmpty(t, pc.Description, "unedited fields survive the merge")
	assert.True(t, pc.Status.Approved(), "approved_with_notes gates exactly like approved")
}

func TestApproveArtifactRejectsBadInput(t *testing.T) {
	ctl, store := newTestController(t, nil)

	res, err := ctl.StartProject(context.Background(), "Systematic review of LLM hallucination mitigation")
	require.NoError(t, err)
	projectID := res.Draft.ProjectRef()

	_, err = ctl.ApproveArtifact(projectID, artifact.TypeProjectContext, json.RawMessage(`{"titel": "typo"}`), "", "")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindValidation), "unknown fields are rejected, not dropped")

	_, err = ctl.ApproveArtifact(projectID, artifact.TypeProjectContext, json.RawMessage(`{"id": "someone-else"}`), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id")

	_, err = ctl.ApproveArtifact(projectID, artifact.TypeProjectContext, nil, artifact.ApprovalStatus("blessed"), "")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindValidation))

	_, err = ctl.ApproveArtifact(projectID, artifact.TypeProblemFraming, nil, "", "")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindNotFound))

	pc, err := store.LoadProject(projectID)
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusDraft, pc.Status, "rejected approvals leave the stored artifact untouched")
}

func TestApproveArtifactValidatesQuestionLinks(t *testing.T) {
	ctl, store := newTestController(t, nil)
	projectID := "p_links"

	model := &artifact.ConceptModel{
		Header:   artifact.Header{ProjectID: projectID, Status: artifact.StatusApproved},
		Concepts: []artifact.Concept{{ID: "c1", Label: "llm", Type: artifact.ConceptOther}},
	}
	require.NoError(t, store.Save(model))
	qs := &artifact.ResearchQuestionSet{
		Header: artifact.Header{ProjectID: projectID, Status: artifact.StatusDraft},
		Questions: []artifact.ResearchQuestion{{
			ID: "rq1", Text: "What approaches exist?", Type: artifact.QuestionDescriptive,
			Priority: artifact.PriorityMust, LinkedConceptIDs: []string{"c9"},
		}},
	}
	require.NoError(t, store.Save(qs))

	_, err := ctl.ApproveArtifact(projectID, artifact.TypeResearchQuestionSet, nil, "", "")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindValidation))
	assert.Contains(t, err.Error(), "c9")

	stored, err := store.Load(projectID, artifact.TypeResearchQuestionSet)
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusDraft, stored.CurrentStatus())

	// Fixing the link through edits lets the approval pass.
	edits := json.RawMessage(`{"questions": [{
		"id": "rq1", "text": "What approaches exist?", "type": "descriptive",
		"priority": "must", "linked_concept_ids": ["c1"]
	}]}`)
	next, err := ctl.ApproveArtifact(projectID, artifact.TypeResearchQuestionSet, edits, "", "")
	require.NoError(t, err)
	assert.Contains(t, next, StageConceptExpansion)
}

func TestListAvailableStagesProgression(t *testing.T) {
	ctl, _ := newTestController(t, nil)
	ctx := context.Background()

	res, err := ctl.StartProject(ctx, "Systematic review of LLM hallucination mitigation")
	require.NoError(t, err)
	projectID := res.Draft.ProjectRef()

	stages, err := ctl.ListAvailableStages(projectID)
	require.NoError(t, err)
	assert.Equal(t, []string{StageProjectSetup}, stages, "only setup is runnable while the context is a draft")

	approve(t, ctl, projectID, artifact.TypeProjectContext)
	stages, err = ctl.ListAvailableStages(projectID)
	require.NoError(t, err)
	assert.Equal(t, []string{StageProblemFraming}, stages)

	_, err = ctl.RunStage(ctx, StageProblemFraming, projectID, nil)
	require.NoError(t, err)
	approve(t, ctl, projectID, artifact.TypeProblemFraming)
	approve(t, ctl, projectID, artifact.TypeConceptModel)

	stages, err = ctl.ListAvailableStages(projectID)
	require.NoError(t, err)
	assert.Equal(t, []string{StageResearchQuestions, StageScreening}, stages,
		"screening needs only framing and the concept model")

	_, err = ctl.ListAvailableStages("ghost")
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestGetProjectOverview(t *testing.T) {
	ctl, _ := newTestController(t, nil)

	res, err := ctl.StartProject(context.Background(), "Systematic review of LLM hallucination mitigation")
	require.NoError(t, err)
	projectID := res.Draft.ProjectRef()
	approve(t, ctl, projectID, artifact.TypeProjectContext)

	ov, err := ctl.GetProject(projectID)
	require.NoError(t, err)
	assert.Equal(t, projectID, ov.ID)
	assert.Equal(t, "Systematic review of LLM hallucination mitigation", ov.Title)
	assert.Equal(t, StageProblemFraming, ov.CurrentStage)
	assert.True(t, ov.Artifacts[artifact.TypeProjectContext].Approved())
	assert.False(t, ov.UpdatedAt.IsZero())

	projects, err := ctl.ListProjects()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, projectID, projects[0].ID)

	_, err = ctl.GetProject("ghost")
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestQueryPlanRejectsUnknownDatabase(t *testing.T) {
	ctl, store := newTestController(t, nil)
	projectID := "p_plan"

	blocks := &artifact.SearchConceptBlocks{
		Header: artifact.Header{ProjectID: projectID, Status: artifact.StatusApproved},
		Blocks: []artifact.SearchBlock{{ID: "b1", Label: "llm", TermsIncluded: []string{"llm", "large language model"}}},
	}
	require.NoError(t, store.Save(blocks))

	res, err := ctl.RunStage(context.Background(), StageQueryPlan, projectID, map[string]string{"databases": "arxiv, notadb"})
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Nil(t, res.Draft)
	assert.Contains(t, strings.Join(res.ValidationErrors, "\n"), "notadb")
	assert.False(t, store.Exists(projectID, artifact.TypeDatabaseQueryPlan))

	// Aliases resolve to the canonical dialect name.
	res, err = ctl.RunStage(context.Background(), StageQueryPlan, projectID, map[string]string{"databases": "webofscience"})
	require.NoError(t, err)
	require.False(t, res.Failed())
	queries := res.Draft.(*artifact.DatabaseQueryPlan).Queries
	require.Len(t, queries, 1)
	assert.Equal(t, "wos", queries[0].DatabaseName)
}

func TestQueryExecutionTotalFailure(t *testing.T) {
	boom := &fakeProvider{name: "arxiv", err: fault.ProviderErr("arxiv", false, nil, "service melted")}
	ctl, store := newTestController(t, nil, boom)
	projectID := "p_exec"

	plan := &artifact.DatabaseQueryPlan{
		Header:  artifact.Header{ProjectID: projectID, Status: artifact.StatusApproved},
		Queries: []artifact.DatabaseQuery{{ID: "q1", DatabaseName: "arxiv", BooleanQueryString: `all:"llm"`}},
	}
	require.NoError(t, store.Save(plan))

	res, err := ctl.RunStage(context.Background(), StageQueryExecution, projectID, nil)
	require.NoError(t, err, "total provider failure is a draft-level outcome, not an operation error")
	assert.True(t, res.Failed())
	assert.Nil(t, res.Draft)
	assert.Contains(t, strings.Join(res.ValidationErrors, "\n"), "all 1 executable databases failed")
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "service melted")
	assert.False(t, store.Exists(projectID, artifact.TypeSearchResults))
}

func TestQueryExecutionRejectsBadMaxResults(t *testing.T) {
	ctl, store := newTestController(t, nil, &fakeProvider{name: "arxiv"})
	projectID := "p_opts"

	plan := &artifact.DatabaseQueryPlan{
		Header:  artifact.Header{ProjectID: projectID, Status: artifact.StatusApproved},
		Queries: []artifact.DatabaseQuery{{ID: "q1", DatabaseName: "arxiv", BooleanQueryString: `all:"llm"`}},
	}
	require.NoError(t, store.Save(plan))

	for _, bad := range []string{"banana", "0", "-5"} {
		res, err := ctl.RunStage(context.Background(), StageQueryExecution, projectID, map[string]string{"max_results": bad})
		require.NoError(t, err)
		assert.True(t, res.Failed(), "max_results=%s must be rejected", bad)
		assert.Contains(t, res.ValidationErrors[0], "max_results")
	}
}

func TestStrategyExportSkipsUnapprovedResults(t *testing.T) {
	arxiv := &fakeProvider{name: "arxiv", docs: []search.Document{{Title: "Solo result", DOI: "10.1/s"}}}
	ctl, _ := newTestController(t, nil, arxiv)
	ctx := context.Background()

	projectID := advancePastQueryPlan(t, ctl, "Systematic review of LLM hallucination mitigation", "arxiv")

	res, err := ctl.RunStage(ctx, StageQueryExecution, projectID, nil)
	require.NoError(t, err)
	require.False(t, res.Failed())
	// SearchResults stays a draft on purpose.

	res, err = ctl.RunStage(ctx, StageStrategyExport, projectID, nil)
	require.NoError(t, err)
	require.False(t, res.Failed())
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "SearchResults is drafted but not approved")

	bundle := res.Draft.(*artifact.StrategyExportBundle)
	require.Len(t, bundle.ExportedFiles, 4, "document exports are still written, just empty")
	protocol := readExportFile(t, bundle, export.ProtocolFileName)
	assert.NotContains(t, protocol, "## Search Results Summary")
	csv := readExportFile(t, bundle, export.CSVFileName)
	assert.NotContains(t, csv, "Solo result")
}

func TestStagesDraftWithMockBackend(t *testing.T) {
	mock := llm.NewMock()
	mock.Stub("project_context", `{
		"title": "Reducing Hallucination in LLMs",
		"description": "A systematic review of mitigation techniques.",
		"discipline": "computing",
		"keywords": ["llm", "hallucination"]
	}`)
	mock.Stub("problem_framing", `{
		"problem_statement": "Hallucination undermines trust in generated text.",
		"goals": ["Map mitigation techniques"],
		"scope_in": ["llm"],
		"scope_out": ["computer vision"],
		"stakeholders": ["practitioners"],
		"research_gap": "No synthesis exists."
	}`)
	mock.Stub("concept_model", `{
		"concepts": [
			{"id": "c1", "label": "large language model", "type": "intervention"},
			{"id": "c2", "label": "hallucination", "type": "outcome"}
		],
		"relations": [{"source_id": "c1", "target_id": "c2", "relation_type": "produces"}]
	}`)

	ctl, _ := newTestController(t, mock)
	ctx := context.Background()

	res, err := ctl.StartProject(ctx, "whatever the reviewer typed")
	require.NoError(t, err)
	require.NotNil(t, res.Draft)
	pc := res.Draft.(*artifact.ProjectContext)
	assert.Equal(t, "Reducing Hallucination in LLMs", pc.Title)
	assert.Equal(t, artifact.ModeMock, pc.ModelMetadata.Mode)
	assert.Equal(t, "mock", pc.ModelMetadata.ModelName)
	assert.Empty(t, res.Warnings)

	projectID := pc.ID
	approve(t, ctl, projectID, artifact.TypeProjectContext)

	res, err = ctl.RunStage(ctx, StageProblemFraming, projectID, nil)
	require.NoError(t, err)
	framing := res.Draft.(*artifact.ProblemFraming)
	assert.Equal(t, "Hallucination undermines trust in generated text.", framing.ProblemStatement)
	model := res.Extra[artifact.TypeConceptModel].(*artifact.ConceptModel)
	require.Len(t, model.Concepts, 2)
	require.Len(t, model.Relations, 1)
	assert.Equal(t, artifact.ModeMock, model.ModelMetadata.Mode)
}

func TestStageFallsBackWhenDrafterFails(t *testing.T) {
	ctl, _ := newTestController(t, llm.NewMock()) // no stubs: every Draft fails

	res, err := ctl.StartProject(context.Background(), "Systematic review of LLM hallucination mitigation")
	require.NoError(t, err)
	require.NotNil(t, res.Draft, "the heuristic must still produce a draft")

	pc := res.Draft.(*artifact.ProjectContext)
	assert.Equal(t, "heuristic", pc.ModelMetadata.ModelName)
	assert.Equal(t, artifact.ModeDeterministic, pc.ModelMetadata.Mode)
	assert.Contains(t, pc.ModelMetadata.Notes, "drafter unavailable")
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "drafted deterministically")
}

func TestFramingRejectsStructurallyBrokenConceptDraft(t *testing.T) {
	mock := llm.NewMock()
	mock.Stub("problem_framing", `{"problem_statement": "Hallucination undermines trust.", "goals": ["Map techniques"]}`)
	mock.Stub("concept_model", `{"concepts": [
		{"id": "c1", "label": "llm", "type": "other"},
		{"id": "c1", "label": "duplicate", "type": "other"}
	]}`)

	ctl, store := newTestController(t, mock)
	projectID := "p_broken"
	pc := &artifact.ProjectContext{
		ID: projectID, Title: "T", Description: "LLM hallucination mitigation",
		Keywords: []string{"llm", "hallucination"}, Status: artifact.StatusApproved,
	}
	require.NoError(t, store.Save(pc))

	res, err := ctl.RunStage(context.Background(), StageProblemFraming, projectID, nil)
	require.NoError(t, err)

	model := res.Extra[artifact.TypeConceptModel].(*artifact.ConceptModel)
	require.NoError(t, artifact.Validate(model), "persisted drafts must be structurally valid")
	assert.Equal(t, "heuristic", model.ModelMetadata.ModelName)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "rejected")

	saved, err := store.Load(projectID, artifact.TypeConceptModel)
	require.NoError(t, err)
	assert.NoError(t, artifact.Validate(saved))
}
