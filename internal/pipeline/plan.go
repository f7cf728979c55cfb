package pipeline

import (
	"context"
	"fmt"
	"strings"

	"slrforge/internal/artifact"
	"slrforge/internal/query"
	"slrforge/internal/query/dialect"
)

// queryPlanStage compiles the approved search blocks into one Boolean query
// per target database. Fully deterministic: the dialect compilers and the
// complexity analyzer do all the work.
type queryPlanStage struct {
	svc *Services
}

func (s *queryPlanStage) Name() string { return StageQueryPlan }

func (s *queryPlanStage) Requires() []artifact.Type {
	return []artifact.Type{artifact.TypeSearchConceptBlocks}
}

func (s *queryPlanStage) Produces() artifact.Type { return artifact.TypeDatabaseQueryPlan }

func (s *queryPlanStage) Run(ctx context.Context, in Inputs) (*StageResult, error) {
	b, err := s.svc.Store.Load(in.ProjectID, artifact.TypeSearchConceptBlocks)
	if err != nil {
		return nil, err
	}
	blocks := b.(*artifact.SearchConceptBlocks)

	res := &StageResult{StageName: StageQueryPlan}

	plan, blockIDs := planFromBlocks(blocks)
	if err := plan.Validate(); err != nil {
		res.ValidationErrors = append(res.ValidationErrors, err.Error())
		return res, nil
	}

	databases := dialect.Names()
	if v := in.Param("databases"); v != "" {
		databases = splitList(v)
	}

	var queries []artifact.DatabaseQuery
	for i, name := range databases {
		d, err := dialect.Get(name)
		if err != nil {
			res.ValidationErrors = append(res.ValidationErrors, err.Error())
			continue
		}
		compiled, warns := d.Compile(plan)
		for _, w := range warns {
			res.Warnings = append(res.Warnings, d.Name()+": "+w)
		}
		analysis := query.AnalyzeCompiled(plan, compiled, d.Capabilities().MaxQueryLength)
		queries = append(queries, artifact.DatabaseQuery{
			ID:                 fmt.Sprintf("q%d", i+1),
			DatabaseName:       d.Name(),
			QueryBlocks:        blockIDs,
			BooleanQueryString: compiled,
			ComplexityAnalysis: &analysis,
		})
	}
	if res.Failed() {
		res.Draft = nil
		return res, nil
	}

	meta := deterministicMeta("query-synthesis")
	res.Draft = &artifact.DatabaseQueryPlan{
		Header:  newHeader(in.ProjectID, meta),
		Queries: queries,
	}
	res.Metadata = meta
	res.Prompts = []string{approvalPrompt(artifact.TypeDatabaseQueryPlan, StageQueryExecution)}
	return res, nil
}

// planFromBlocks lowers the reviewed search blocks into the abstract query
// model. Excluded terms from every block pool into one exclusion group.
func planFromBlocks(blocks *artifact.SearchConceptBlocks) (query.Plan, []string) {
	var plan query.Plan
	ids := make([]string, 0, len(blocks.Blocks))
	var excluded []query.Term

	for _, blk := range blocks.Blocks {
		terms := make([]query.Term, 0, len(blk.TermsIncluded))
		for _, t := range blk.TermsIncluded {
			terms = append(terms, query.NewTerm(t, query.FieldKeyword))
		}
		plan.Blocks = append(plan.Blocks, query.Block{Label: blk.Label, Terms: terms})
		ids = append(ids, blk.ID)
		for _, t := range blk.TermsExcluded {
			excluded = append(excluded, query.NewTerm(t, query.FieldKeyword))
		}
	}
	if len(excluded) > 0 {
		plan.Exclusion = &query.Block{Label: "exclusions", Terms: excluded}
	}
	return plan, ids
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
