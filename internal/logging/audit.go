// Package logging provides the audit trail: an append-only JSONL record of
// every stage run, review decision, drafter call, provider search, and file
// written. The trail is the reproducibility record of a review project; a
// protocol reader can reconstruct what ran, when, and with what outcome.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType names one kind of audit event.
type AuditEventType string

const (
	// Stage lifecycle
	AuditStageStart    AuditEventType = "stage_start"
	AuditStageComplete AuditEventType = "stage_complete"

	// Review decisions
	AuditArtifactDrafted  AuditEventType = "artifact_drafted"
	AuditArtifactReviewed AuditEventType = "artifact_reviewed"

	// Drafting
	AuditDraftCall     AuditEventType = "draft_call"
	AuditDraftFallback AuditEventType = "draft_fallback"

	// Search execution
	AuditSearchRun AuditEventType = "search_run"
	AuditDedupRun  AuditEventType = "dedup_run"

	// Persistence
	AuditFileWrite   AuditEventType = "file_write"
	AuditExportWrite AuditEventType = "export_write"

	// Errors outside the categories above
	AuditError AuditEventType = "error"
)

// AuditEvent is one structured line of the audit trail.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat,omitempty"`
	ProjectID  string                 `json:"project,omitempty"`
	Stage      string                 `json:"stage,omitempty"`
	Target     string                 `json:"target,omitempty"` // artifact type, provider, model, or path
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile *os.File
	auditMu   sync.Mutex
)

// InitAudit opens the audit trail under dir, one dated file per day,
// appending across runs. Until it is called every audit write is a no-op,
// so library use and tests stay silent.
func InitAudit(dir string) error {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	logsDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	path := filepath.Join(logsDir, time.Now().UTC().Format("2006-01-02")+"_audit.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	auditFile = file
	return nil
}

// CloseAudit closes the trail. Safe to call without InitAudit.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// AuditLogger stamps shared correlation fields onto every event it logs.
type AuditLogger struct {
	projectID string
	category  Category
}

// Audit returns an unscoped audit logger.
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditFor returns an audit logger scoped to one project.
func AuditFor(projectID string) *AuditLogger {
	return &AuditLogger{projectID: projectID}
}

// WithCategory attaches a log category to the logger's events.
func (a *AuditLogger) WithCategory(c Category) *AuditLogger {
	return &AuditLogger{projectID: a.projectID, category: c}
}

// Log writes one event to the trail. Missing timestamp and correlation
// fields are filled from the logger's scope.
func (a *AuditLogger) Log(event AuditEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.ProjectID == "" {
		event.ProjectID = a.projectID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	auditFile.Write(append(data, '\n'))
}

// StageStart records the beginning of a stage run.
func (a *AuditLogger) StageStart(stage string) {
	a.Log(AuditEvent{
		EventType: AuditStageStart,
		Category:  string(CategoryPipeline),
		Stage:     stage,
		Success:   true,
		Message:   fmt.Sprintf("stage %s started", stage),
	})
}

// StageComplete records the outcome of a stage run.
func (a *AuditLogger) StageComplete(stage string, durationMs int64, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType:  AuditStageComplete,
		Category:   string(CategoryPipeline),
		Stage:      stage,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("stage %s completed (success=%v, %dms)", stage, success, durationMs),
	})
}

// ArtifactDrafted records that a stage produced a draft for review.
func (a *AuditLogger) ArtifactDrafted(artifactType, modelName, mode string) {
	a.Log(AuditEvent{
		EventType: AuditArtifactDrafted,
		Category:  string(CategoryPipeline),
		Target:    artifactType,
		Success:   true,
		Fields:    map[string]interface{}{"model": modelName, "mode": mode},
		Message:   fmt.Sprintf("%s drafted by %s (%s)", artifactType, modelName, mode),
	})
}

// ArtifactReviewed records a human review decision.
func (a *AuditLogger) ArtifactReviewed(artifactType, status string, edited bool) {
	a.Log(AuditEvent{
		EventType: AuditArtifactReviewed,
		Category:  string(CategoryPipeline),
		Target:    artifactType,
		Success:   true,
		Fields:    map[string]interface{}{"status": status, "edited": edited},
		Message:   fmt.Sprintf("%s reviewed: %s (edited=%v)", artifactType, status, edited),
	})
}

// DraftCall records one round trip to the drafting model.
func (a *AuditLogger) DraftCall(model string, durationMs int64, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType:  AuditDraftCall,
		Category:   string(CategoryDrafter),
		Target:     model,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("draft call to %s (success=%v, %dms)", model, success, durationMs),
	})
}

// DraftFallback records that drafting fell back to the deterministic path.
func (a *AuditLogger) DraftFallback(model, reason string) {
	a.Log(AuditEvent{
		EventType: AuditDraftFallback,
		Category:  string(CategoryDrafter),
		Target:    model,
		Success:   true,
		Error:     reason,
		Message:   fmt.Sprintf("deterministic fallback, %s unavailable", model),
	})
}

// SearchRun records one provider search.
func (a *AuditLogger) SearchRun(provider string, results int, durationMs int64, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType:  AuditSearchRun,
		Category:   string(CategorySearch),
		Target:     provider,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"results": results},
		Message:    fmt.Sprintf("search %s: %d results (success=%v, %dms)", provider, results, success, durationMs),
	})
}

// DedupRun records a deduplication pass.
func (a *AuditLogger) DedupRun(original, removed int) {
	a.Log(AuditEvent{
		EventType: AuditDedupRun,
		Category:  string(CategoryDedup),
		Success:   true,
		Fields:    map[string]interface{}{"original": original, "removed": removed},
		Message:   fmt.Sprintf("dedup: %d -> %d documents", original, original-removed),
	})
}

// FileWrite records an artifact or result file write.
func (a *AuditLogger) FileWrite(path string, size int64, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: AuditFileWrite,
		Category:  string(CategoryStore),
		Target:    path,
		Success:   success,
		Error:     errMsg,
		Fields:    map[string]interface{}{"size": size},
		Message:   fmt.Sprintf("wrote %s (%d bytes, success=%v)", path, size, success),
	})
}

// ExportWrite records one exported strategy file.
func (a *AuditLogger) ExportWrite(path string, size int64) {
	a.Log(AuditEvent{
		EventType: AuditExportWrite,
		Category:  string(CategoryExport),
		Target:    path,
		Success:   true,
		Fields:    map[string]interface{}{"size": size},
		Message:   fmt.Sprintf("exported %s (%d bytes)", path, size),
	})
}

// Error records a failure that has no more specific event type.
func (a *AuditLogger) Error(category string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: AuditError,
		Category:  category,
		Success:   false,
		Error:     msg,
		Message:   fmt.Sprintf("error in %s: %s", category, msg),
	})
}
