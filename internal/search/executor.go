package search

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"slrforge/internal/artifact"
	"slrforge/internal/config"
	"slrforge/internal/fault"
	"slrforge/internal/logging"
)

// Warning records a non-fatal problem with one database during execution.
type Warning struct {
	Database string `json:"database"`
	Message  string `json:"message"`
}

// Options tunes one execution run. Zero values mean: configured default for
// MaxResultsPerDB, deduplication on.
type Options struct {
	MaxResultsPerDB int
	SkipDeduplicate bool
}

// Executor fans a DatabaseQueryPlan out across the registered providers,
// persists per-provider result files, deduplicates, and composes the
// SearchResults artifact. It is the only component in the pipeline that
// performs parallel I/O.
type Executor struct {
	store     *artifact.Store
	providers *Registry
	dedup     Deduplicator
	cache     *Cache
	cfg       *config.Config
}

// NewExecutor wires an executor. cache may be nil to disable response
// caching.
func NewExecutor(store *artifact.Store, providers *Registry, dedup Deduplicator, cache *Cache, cfg *config.Config) *Executor {
	return &Executor{store: store, providers: providers, dedup: dedup, cache: cache, cfg: cfg}
}

type job struct {
	provider Provider
	query    string
}

type outcome struct {
	provider string
	docs     []Document
	err      error
	durMs    int64
}

// Execute runs every executable query in the plan. Databases in the plan
// whose dialect has no registered provider are skipped with a warning; the
// run fails only when every executable database fails, or on cancellation,
// in which case no SearchResults artifact is composed.
func (e *Executor) Execute(ctx context.Context, projectID string, plan *artifact.DatabaseQueryPlan, opts Options) (*artifact.SearchResults, []Warning, error) {
	if plan == nil || len(plan.Queries) == 0 {
		return nil, nil, fault.Validation("query plan has no queries to execute")
	}
	maxResults := opts.MaxResultsPerDB
	if maxResults <= 0 {
		maxResults = e.cfg.Executor.MaxResultsPerDB
	}

	start := time.Now()
	var warnings []Warning

	// Partition in plan order; that order also fixes which duplicate wins
	// during deduplication.
	var jobs []job
	for _, q := range plan.Queries {
		p, ok := e.providers.Get(q.DatabaseName)
		if !ok {
			warnings = append(warnings, Warning{
				Database: q.DatabaseName,
				Message:  "no executable provider registered; query is syntax-only",
			})
			logging.SearchDebug("Skipping %s: syntax-only database", q.DatabaseName)
			continue
		}
		jobs = append(jobs, job{provider: p, query: q.BooleanQueryString})
	}
	if len(jobs) == 0 {
		return nil, warnings, fault.Validation("plan contains no executable databases")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.OverallTimeout())
	defer cancel()

	limit := e.cfg.Executor.Concurrency
	if len(jobs) < limit {
		limit = len(jobs)
	}
	logging.Search("Dispatching %d provider searches (concurrency %d, max %d results each)", len(jobs), limit, maxResults)

	results := make([]outcome, len(jobs))
	sem := make(chan struct{}, limit)
	var g errgroup.Group
	for i, jb := range jobs {
		i, jb := i, jb
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = e.runOne(runCtx, jb, maxResults)
			return nil
		})
	}
	g.Wait()

	// Cancellation or overall deadline: abort without composing an artifact.
	if err := ctx.Err(); err != nil {
		return nil, warnings, contextFault("executor", err)
	}
	if err := runCtx.Err(); err != nil {
		return nil, warnings, fault.Timeout(err, "search run exceeded the overall deadline")
	}

	timestamp := start.UTC().Format("20060102T150405Z")
	aud := logging.AuditFor(projectID)
	var (
		searched  []string
		withDocs  []string
		combined  []Document
		filePaths []string
		total     int
	)
	for _, res := range results {
		if res.err != nil {
			warnings = append(warnings, Warning{Database: res.provider, Message: res.err.Error()})
			aud.SearchRun(res.provider, 0, res.durMs, false, res.err.Error())
			logging.SearchWarn("Provider %s failed: %v", res.provider, res.err)
			continue
		}
		aud.SearchRun(res.provider, len(res.docs), res.durMs, true, "")

		path, err := e.persistDocs(projectID, res.provider+"_"+timestamp+".json", res.docs)
		if err != nil {
			return nil, warnings, err
		}
		filePaths = append(filePaths, path)
		searched = append(searched, res.provider)
		total += len(res.docs)
		combined = append(combined, res.docs...)
		if len(res.docs) > 0 {
			withDocs = append(withDocs, res.provider)
		}
		logging.Search("Provider %s returned %d documents", res.provider, len(res.docs))
	}

	if len(searched) == 0 {
		return nil, warnings, fault.Validation("all %d executable databases failed", len(jobs))
	}

	stats := DedupStats{OriginalCount: total, DeduplicatedCount: total}
	if !opts.SkipDeduplicate && len(withDocs) >= 2 {
		var unique []Document
		unique, stats = e.dedup.Deduplicate(combined)
		name := "deduplicated_" + strings.Join(withDocs, "_") + "_" + timestamp + ".json"
		path, err := e.persistDocs(projectID, name, unique)
		if err != nil {
			return nil, warnings, err
		}
		filePaths = append(filePaths, path)
		aud.DedupRun(stats.OriginalCount, stats.DuplicatesRemoved)
	}

	sr := &artifact.SearchResults{
		Header:            artifact.Header{ProjectID: projectID, Status: artifact.StatusDraft},
		TotalResults:      total,
		DeduplicatedCount: stats.DeduplicatedCount,
		DatabasesSearched: searched,
		ResultFilePaths:   filePaths,
		DeduplicationStats: artifact.DeduplicationStats{
			OriginalCount:     stats.OriginalCount,
			DuplicatesRemoved: stats.DuplicatesRemoved,
			Rate:              stats.Rate,
		},
		ExecutionTimeSeconds: time.Since(start).Seconds(),
	}
	logging.Search("Search complete: %d documents from %d databases, %d after dedup (%.1fs)",
		total, len(searched), stats.DeduplicatedCount, sr.ExecutionTimeSeconds)
	return sr, warnings, nil
}

// runOne executes a single provider search under the per-call deadline,
// consulting the cache first.
func (e *Executor) runOne(ctx context.Context, jb job, maxResults int) outcome {
	name := jb.provider.Name()
	if err := ctx.Err(); err != nil {
		return outcome{provider: name, err: contextFault(name, err)}
	}

	if e.cache != nil {
		if docs, ok := e.cache.Get(name, jb.query, maxResults); ok {
			return outcome{provider: name, docs: docs}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.PerCallTimeout())
	defer cancel()

	began := time.Now()
	docs, err := jb.provider.Search(callCtx, jb.query, maxResults)
	elapsed := time.Since(began).Milliseconds()
	if err != nil {
		return outcome{provider: name, err: err, durMs: elapsed}
	}
	if e.cache != nil {
		e.cache.Put(name, jb.query, maxResults, docs)
	}
	return outcome{provider: name, docs: docs, durMs: elapsed}
}

// persistDocs writes one result side file and returns its path.
func (e *Executor) persistDocs(projectID, name string, docs []Document) (string, error) {
	if docs == nil {
		docs = []Document{}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return "", fault.Internal(err, "marshaling result documents")
	}
	return e.store.SaveResultFile(projectID, name, data)
}

// LoadDocuments reads a persisted result file back into memory. Exporters
// use it to serialize the deduplicated set.
func LoadDocuments(path string) ([]Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fault.Corrupt(err, "decoding result file %s", path)
	}
	return docs, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.NotFound("result file %s not found", path)
		}
		return nil, fault.IO(err, "reading result file %s", path)
	}
	return data, nil
}
