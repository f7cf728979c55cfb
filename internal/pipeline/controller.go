package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"slrforge/internal/artifact"
	"slrforge/internal/config"
	"slrforge/internal/export"
	"slrforge/internal/fault"
	"slrforge/internal/llm"
	"slrforge/internal/logging"
	"slrforge/internal/search"
)

// Controller owns the stage registry and enforces the approval gates. Stages
// produce drafts; the controller is the only component that persists them.
type Controller struct {
	svc    *Services
	stages map[string]Stage
	order  []string
}

// NewController wires the eight pipeline stages over shared services.
func NewController(cfg *config.Config, store *artifact.Store, drafter llm.Drafter, exec *search.Executor, bundler *export.Bundler) *Controller {
	svc := &Services{
		Store:    store,
		Drafter:  drafter,
		Executor: exec,
		Bundler:  bundler,
		Cfg:      cfg,
	}
	c := &Controller{svc: svc, stages: make(map[string]Stage)}
	for _, st := range []Stage{
		&projectSetupStage{svc: svc},
		&problemFramingStage{svc: svc},
		&researchQuestionsStage{svc: svc},
		&conceptExpansionStage{svc: svc},
		&queryPlanStage{svc: svc},
		&queryExecutionStage{svc: svc},
		&screeningStage{svc: svc},
		&strategyExportStage{svc: svc},
	} {
		c.stages[st.Name()] = st
		c.order = append(c.order, st.Name())
	}
	return c
}

// StartProject mints a project id and runs project-setup on the raw idea.
// The returned result carries the ProjectContext draft awaiting review.
func (c *Controller) StartProject(ctx context.Context, rawIdea string) (*StageResult, error) {
	in := Inputs{ProjectID: artifact.NewProjectID(), RawIdea: rawIdea}
	logging.Pipeline("starting project %s", in.ProjectID)
	return c.runAndPersist(ctx, c.stages[StageProjectSetup], in)
}

// RunStage executes one named stage for an existing project. Every artifact
// the stage requires must be approved first; a failed gate returns a
// precondition fault before the stage runs, so nothing is written.
func (c *Controller) RunStage(ctx context.Context, name, projectID string, params map[string]string) (*StageResult, error) {
	st, ok := c.stages[name]
	if !ok {
		return nil, fault.Validation("unknown stage %q (known stages: %s)", name, strings.Join(StageNames(), ", "))
	}
	statuses, err := c.svc.Store.List(projectID)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, t := range st.Requires() {
		if !statuses[t].Approved() {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		return nil, fault.PreconditionFailed(missing...)
	}
	logging.Pipeline("running stage %s for project %s", name, projectID)
	return c.runAndPersist(ctx, st, Inputs{ProjectID: projectID, Params: params})
}

func (c *Controller) runAndPersist(ctx context.Context, st Stage, in Inputs) (*StageResult, error) {
	aud := logging.AuditFor(in.ProjectID)
	aud.StageStart(st.Name())
	start := time.Now()

	res, err := st.Run(ctx, in)
	if err != nil {
		logging.PipelineError("stage %s failed: %v", st.Name(), err)
		aud.StageComplete(st.Name(), time.Since(start).Milliseconds(), false, err.Error())
		return nil, err
	}
	if res.Failed() {
		logging.PipelineWarn("stage %s produced no draft: %d validation errors", st.Name(), len(res.ValidationErrors))
		aud.StageComplete(st.Name(), time.Since(start).Milliseconds(), false, strings.Join(res.ValidationErrors, "; "))
		return res, nil
	}
	if res.Draft != nil {
		if err := c.svc.Store.Save(res.Draft); err != nil {
			return nil, err
		}
	}
	for _, extra := range res.Extra {
		if err := c.svc.Store.Save(extra); err != nil {
			return nil, err
		}
	}
	if res.Draft != nil && res.Metadata != nil {
		aud.ArtifactDrafted(string(res.Draft.Type()), res.Metadata.ModelName, res.Metadata.Mode)
	}
	aud.StageComplete(st.Name(), time.Since(start).Milliseconds(), true, "")
	logging.Pipeline("stage %s complete for project %s", st.Name(), in.ProjectID)
	return res, nil
}

// ApproveArtifact applies optional edits to a stored artifact, moves it to
// the given status (approved when empty), and records reviewer notes. It
// returns the stages the approval unlocked.
func (c *Controller) ApproveArtifact(projectID string, t artifact.Type, edits json.RawMessage, status artifact.ApprovalStatus, notes string) ([]string, error) {
	if status == "" {
		status = artifact.StatusApproved
	}
	if !status.Valid() {
		return nil, fault.Validation("unknown approval status %q", status)
	}
	a, err := c.svc.Store.Load(projectID, t)
	if err != nil {
		return nil, err
	}
	if len(edits) > 0 {
		if err := applyEdits(a, edits); err != nil {
			return nil, err
		}
	}
	a.SetStatus(status)
	if notes != "" {
		a.SetUserNotes(notes)
	}
	if err := artifact.Validate(a); err != nil {
		return nil, err
	}
	if qs, ok := a.(*artifact.ResearchQuestionSet); ok {
		if cm, err := c.svc.Store.Load(projectID, artifact.TypeConceptModel); err == nil {
			if err := artifact.ValidateQuestionLinks(qs, cm.(*artifact.ConceptModel)); err != nil {
				return nil, err
			}
		}
	}
	if err := c.svc.Store.Save(a); err != nil {
		return nil, err
	}
	logging.AuditFor(projectID).ArtifactReviewed(string(t), string(status), len(edits) > 0)
	logging.Pipeline("%s %s for project %s", t, status, projectID)
	return c.ListAvailableStages(projectID)
}

// applyEdits merges a reviewer's JSON edits into the loaded artifact. The
// merge is top-level field replacement; unknown fields and identity changes
// are rejected so a typo cannot silently vanish into the stored document.
func applyEdits(a artifact.Artifact, edits json.RawMessage) error {
	ref := a.ProjectRef()
	dec := json.NewDecoder(bytes.NewReader(edits))
	dec.DisallowUnknownFields()
	if err := dec.Decode(a); err != nil {
		return fault.Validation("invalid edits for %s: %v", a.Type(), err)
	}
	if a.ProjectRef() != ref {
		return fault.Validation("edits may not change project_id")
	}
	return nil
}

// ListAvailableStages returns, in pipeline order, the stages whose inputs
// are all approved and whose own artifact still awaits approval.
func (c *Controller) ListAvailableStages(projectID string) ([]string, error) {
	statuses, err := c.svc.Store.List(projectID)
	if err != nil {
		return nil, err
	}
	var available []string
	for _, name := range c.order {
		st := c.stages[name]
		if statuses[st.Produces()].Approved() {
			continue
		}
		ready := true
		for _, t := range st.Requires() {
			if !statuses[t].Approved() {
				ready = false
				break
			}
		}
		if ready {
			available = append(available, name)
		}
	}
	return available, nil
}

// ProjectOverview summarizes a project for status displays.
type ProjectOverview struct {
	ID           string                                    `json:"id"`
	Title        string                                    `json:"title"`
	Status       artifact.ApprovalStatus                   `json:"status"`
	CurrentStage string                                    `json:"current_stage"`
	Artifacts    map[artifact.Type]artifact.ApprovalStatus `json:"artifacts"`
	CreatedAt    time.Time                                 `json:"created_at"`
	UpdatedAt    time.Time                                 `json:"updated_at"`
}

// GetProject loads the project context and summarizes pipeline progress.
// CurrentStage is the first stage whose artifact is not yet approved, or
// "complete" once every stage has an approved artifact.
func (c *Controller) GetProject(projectID string) (*ProjectOverview, error) {
	pc, err := c.svc.Store.LoadProject(projectID)
	if err != nil {
		return nil, err
	}
	statuses, err := c.svc.Store.List(projectID)
	if err != nil {
		return nil, err
	}
	current := "complete"
	for _, name := range c.order {
		if !statuses[c.stages[name].Produces()].Approved() {
			current = name
			break
		}
	}
	return &ProjectOverview{
		ID:           pc.ID,
		Title:        pc.Title,
		Status:       pc.Status,
		CurrentStage: current,
		Artifacts:    statuses,
		CreatedAt:    pc.CreatedAt,
		UpdatedAt:    pc.UpdatedAt,
	}, nil
}

// ListProjects returns every project context, oldest first.
func (c *Controller) ListProjects() ([]*artifact.ProjectContext, error) {
	return c.svc.Store.ListProjects()
}

// GetArtifact loads one artifact without interpretation.
func (c *Controller) GetArtifact(projectID string, t artifact.Type) (artifact.Artifact, error) {
	return c.svc.Store.Load(projectID, t)
}
