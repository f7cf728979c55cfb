package pipeline

import (
	"context"
	"strconv"

	"slrforge/internal/artifact"
	"slrforge/internal/fault"
	"slrforge/internal/search"
)

// queryExecutionStage hands the approved query plan to the search executor.
// The executor owns fan-out, rate limits, retries, and result persistence;
// this stage translates its outcome into the stage result channels.
type queryExecutionStage struct {
	svc *Services
}

func (s *queryExecutionStage) Name() string { return StageQueryExecution }

func (s *queryExecutionStage) Requires() []artifact.Type {
	return []artifact.Type{artifact.TypeDatabaseQueryPlan}
}

func (s *queryExecutionStage) Produces() artifact.Type { return artifact.TypeSearchResults }

func (s *queryExecutionStage) Run(ctx context.Context, in Inputs) (*StageResult, error) {
	p, err := s.svc.Store.Load(in.ProjectID, artifact.TypeDatabaseQueryPlan)
	if err != nil {
		return nil, err
	}
	plan := p.(*artifact.DatabaseQueryPlan)

	res := &StageResult{StageName: StageQueryExecution}

	opts := search.Options{SkipDeduplicate: !s.svc.Cfg.Dedup.Enabled}
	if v := in.Param("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			res.ValidationErrors = append(res.ValidationErrors, "max_results must be a positive integer")
			return res, nil
		}
		opts.MaxResultsPerDB = n
	}
	if in.Param("dedup") == "false" {
		opts.SkipDeduplicate = true
	}

	sr, warnings, err := s.svc.Executor.Execute(ctx, in.ProjectID, plan, opts)
	for _, w := range warnings {
		res.Warnings = append(res.Warnings, w.Database+": "+w.Message)
	}
	if err != nil {
		// Total executable failure is a stage-level validation outcome;
		// anything else (timeout, cancellation, storage) fails the run.
		if fault.IsKind(err, fault.KindValidation) {
			res.ValidationErrors = append(res.ValidationErrors, err.Error())
			return res, nil
		}
		return nil, err
	}

	meta := deterministicMeta("search-executor")
	sr.ModelMetadata = meta
	res.Draft = sr
	res.Metadata = meta
	res.Prompts = []string{
		approvalPrompt(artifact.TypeSearchResults, ""),
		"Run the screening-criteria stage to derive eligibility rules.",
	}
	return res, nil
}
