package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"slrforge/internal/artifact"
	"slrforge/internal/export"
	"slrforge/internal/fault"
	"slrforge/internal/search"
)

// strategyExportStage assembles the protocol bundle from every approved
// artifact. ScreeningCriteria and SearchResults join the protocol only when
// approved; the six core artifacts are hard requirements.
type strategyExportStage struct {
	svc *Services
}

func (s *strategyExportStage) Name() string { return StageStrategyExport }

func (s *strategyExportStage) Requires() []artifact.Type {
	return []artifact.Type{
		artifact.TypeProjectContext,
		artifact.TypeProblemFraming,
		artifact.TypeConceptModel,
		artifact.TypeResearchQuestionSet,
		artifact.TypeSearchConceptBlocks,
		artifact.TypeDatabaseQueryPlan,
	}
}

func (s *strategyExportStage) Produces() artifact.Type { return artifact.TypeStrategyExportBundle }

func (s *strategyExportStage) Run(ctx context.Context, in Inputs) (*StageResult, error) {
	pc, err := s.svc.Store.LoadProject(in.ProjectID)
	if err != nil {
		return nil, err
	}
	framing, model, err := loadFramingAndModel(s.svc.Store, in.ProjectID)
	if err != nil {
		return nil, err
	}
	q, err := s.svc.Store.Load(in.ProjectID, artifact.TypeResearchQuestionSet)
	if err != nil {
		return nil, err
	}
	b, err := s.svc.Store.Load(in.ProjectID, artifact.TypeSearchConceptBlocks)
	if err != nil {
		return nil, err
	}
	p, err := s.svc.Store.Load(in.ProjectID, artifact.TypeDatabaseQueryPlan)
	if err != nil {
		return nil, err
	}

	res := &StageResult{StageName: StageStrategyExport}
	inputs := export.ProtocolInputs{
		Project:   pc,
		Framing:   framing,
		Concepts:  model,
		Questions: q.(*artifact.ResearchQuestionSet),
		Blocks:    b.(*artifact.SearchConceptBlocks),
		Plan:      p.(*artifact.DatabaseQueryPlan),
	}

	if sc, ok, warn := s.optionalScreening(in.ProjectID); ok {
		inputs.Screening = sc
	} else if warn != "" {
		res.Warnings = append(res.Warnings, warn)
	}

	var docs []search.Document
	if sr, ok, warn := s.optionalResults(in.ProjectID); ok {
		inputs.Results = sr
		var warns []string
		docs, warns = collectDocuments(sr)
		res.Warnings = append(res.Warnings, warns...)
	} else if warn != "" {
		res.Warnings = append(res.Warnings, warn)
	}

	bundle, warns, err := s.svc.Bundler.Export(in.ProjectID, docs, inputs)
	res.Warnings = append(res.Warnings, warns...)
	if err != nil {
		return nil, err
	}

	meta := deterministicMeta("export-bundler")
	bundle.ModelMetadata = meta
	res.Draft = bundle
	res.Metadata = meta
	res.Prompts = []string{approvalPrompt(artifact.TypeStrategyExportBundle, "")}
	return res, nil
}

func (s *strategyExportStage) optionalScreening(projectID string) (*artifact.ScreeningCriteria, bool, string) {
	a, err := s.svc.Store.Load(projectID, artifact.TypeScreeningCriteria)
	if err != nil {
		if fault.IsKind(err, fault.KindNotFound) {
			return nil, false, ""
		}
		return nil, false, fmt.Sprintf("ScreeningCriteria unreadable: %v", err)
	}
	sc := a.(*artifact.ScreeningCriteria)
	if !sc.Status.Approved() {
		return nil, false, "ScreeningCriteria is drafted but not approved; left out of the protocol"
	}
	return sc, true, ""
}

func (s *strategyExportStage) optionalResults(projectID string) (*artifact.SearchResults, bool, string) {
	a, err := s.svc.Store.Load(projectID, artifact.TypeSearchResults)
	if err != nil {
		if fault.IsKind(err, fault.KindNotFound) {
			return nil, false, ""
		}
		return nil, false, fmt.Sprintf("SearchResults unreadable: %v", err)
	}
	sr := a.(*artifact.SearchResults)
	if !sr.Status.Approved() {
		return nil, false, "SearchResults is drafted but not approved; left out of the protocol"
	}
	return sr, true, ""
}

// collectDocuments loads the documents behind a SearchResults artifact,
// preferring the deduplicated file when one was produced. Unreadable files
// degrade to warnings; the export still proceeds with whatever loaded.
func collectDocuments(sr *artifact.SearchResults) ([]search.Document, []string) {
	var warns []string
	for _, path := range sr.ResultFilePaths {
		if strings.HasPrefix(filepath.Base(path), "deduplicated_") {
			docs, err := search.LoadDocuments(path)
			if err == nil {
				return docs, nil
			}
			warns = append(warns, fmt.Sprintf("could not load %s: %v", filepath.Base(path), err))
		}
	}

	var all []search.Document
	for _, path := range sr.ResultFilePaths {
		if strings.HasPrefix(filepath.Base(path), "deduplicated_") {
			continue
		}
		docs, err := search.LoadDocuments(path)
		if err != nil {
			warns = append(warns, fmt.Sprintf("could not load %s: %v", filepath.Base(path), err))
			continue
		}
		all = append(all, docs...)
	}
	return all, warns
}
