package search

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slrforge/internal/artifact"
	"slrforge/internal/fault"
)

type fakeProvider struct {
	name  string
	docs  []Document
	err   error
	delay time.Duration
	calls int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, query string, maxResults int) ([]Document, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

// stubDeduper collapses by DOI only, preserving first-seen order, so the
// executor tests control dedup outcomes without depending on the real policy.
type stubDeduper struct{}

func (stubDeduper) Deduplicate(docs []Document) ([]Document, DedupStats) {
	seen := make(map[string]bool)
	var unique []Document
	for _, d := range docs {
		key := d.DOI
		if key == "" {
			key = d.Fingerprint
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, d)
	}
	stats := DedupStats{
		OriginalCount:     len(docs),
		DeduplicatedCount: len(unique),
		DuplicatesRemoved: len(docs) - len(unique),
	}
	if len(docs) > 0 {
		stats.Rate = float64(stats.DuplicatesRemoved) / float64(len(docs))
	}
	return unique, stats
}

func newTestExecutor(t *testing.T, cache *Cache, providers ...Provider) (*Executor, *artifact.Store) {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	reg := EmptyRegistry()
	for _, p := range providers {
		reg.Add(p)
	}
	return NewExecutor(store, reg, stubDeduper{}, cache, testConfig()), store
}

func execPlan(databases ...string) *artifact.DatabaseQueryPlan {
	plan := &artifact.DatabaseQueryPlan{
		Header: artifact.Header{ProjectID: "p1", Status: artifact.StatusApproved},
	}
	for _, name := range databases {
		plan.Queries = append(plan.Queries, artifact.DatabaseQuery{
			ID:                 "q_" + name,
			DatabaseName:       name,
			BooleanQueryString: `"screening" AND "automation"`,
		})
	}
	return plan
}

func warnedDatabases(warnings []Warning) []string {
	names := make([]string, 0, len(warnings))
	for _, w := range warnings {
		names = append(names, w.Database)
	}
	return names
}

func TestExecutePartialFailure(t *testing.T) {
	alpha := &fakeProvider{name: "alpha", docs: []Document{
		{Title: "First", DOI: "10.1/a", Provider: "alpha"},
		{Title: "Second", DOI: "10.1/b", Provider: "alpha"},
	}}
	beta := &fakeProvider{name: "beta", err: fault.ProviderErr("beta", false, nil, "service melted")}

	exec, _ := newTestExecutor(t, nil, alpha, beta)
	sr, warnings, err := exec.Execute(context.Background(), "p1", execPlan("alpha", "beta", "pubmed"), Options{})

	require.NoError(t, err, "one healthy database keeps the run alive")
	require.NotNil(t, sr)

	assert.Equal(t, []string{"alpha"}, sr.DatabasesSearched)
	assert.Equal(t, 2, sr.TotalResults)
	assert.Equal(t, 2, sr.DeduplicatedCount, "single-source runs skip dedup")
	assert.Equal(t, artifact.StatusDraft, sr.Status)
	assert.Equal(t, "p1", sr.ProjectID)

	assert.Equal(t, []string{"pubmed", "beta"}, warnedDatabases(warnings))
	assert.Contains(t, warnings[0].Message, "syntax-only")
	assert.Contains(t, warnings[1].Message, "service melted")

	require.Len(t, sr.ResultFilePaths, 1)
	base := filepath.Base(sr.ResultFilePaths[0])
	assert.Regexp(t, regexp.MustCompile(`^alpha_\d{8}T\d{6}Z\.json$`), base)

	docs, err := LoadDocuments(sr.ResultFilePaths[0])
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestExecuteAllProvidersFailing(t *testing.T) {
	alpha := &fakeProvider{name: "alpha", err: fault.ProviderErr("alpha", false, nil, "down")}
	beta := &fakeProvider{name: "beta", err: fault.ProviderErr("beta", true, nil, "also down")}

	exec, store := newTestExecutor(t, nil, alpha, beta)
	sr, warnings, err := exec.Execute(context.Background(), "p1", execPlan("alpha", "beta"), Options{})

	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindValidation))
	assert.Nil(t, sr)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, warnedDatabases(warnings))

	_, statErr := os.Stat(store.ResultsDir("p1"))
	assert.True(t, os.IsNotExist(statErr), "a failed run must write no result files")
}

func TestExecuteSyntaxOnlyPlanFails(t *testing.T) {
	exec, _ := newTestExecutor(t, nil)
	sr, warnings, err := exec.Execute(context.Background(), "p1", execPlan("pubmed", "scopus"), Options{})

	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindValidation))
	assert.Nil(t, sr)
	assert.Equal(t, []string{"pubmed", "scopus"}, warnedDatabases(warnings))
}

func TestExecuteEmptyPlanFails(t *testing.T) {
	exec, _ := newTestExecutor(t, nil)

	_, _, err := exec.Execute(context.Background(), "p1", nil, Options{})
	assert.True(t, fault.IsKind(err, fault.KindValidation))

	_, _, err = exec.Execute(context.Background(), "p1", &artifact.DatabaseQueryPlan{}, Options{})
	assert.True(t, fault.IsKind(err, fault.KindValidation))
}

func TestExecuteDeduplicatesAcrossProviders(t *testing.T) {
	alpha := &fakeProvider{name: "alpha", docs: []Document{
		{Title: "Shared Result", DOI: "10.1/a", Provider: "alpha"},
		{Title: "Alpha Only", DOI: "10.1/b", Provider: "alpha"},
	}}
	beta := &fakeProvider{name: "beta", docs: []Document{
		{Title: "Shared Result", DOI: "10.1/a", Provider: "beta"},
		{Title: "Beta Only", DOI: "10.1/c", Provider: "beta"},
	}}

	exec, _ := newTestExecutor(t, nil, alpha, beta)
	sr, warnings, err := exec.Execute(context.Background(), "p1", execPlan("alpha", "beta"), Options{})

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 4, sr.TotalResults)
	assert.Equal(t, 3, sr.DeduplicatedCount)
	assert.Equal(t, 4, sr.DeduplicationStats.OriginalCount)
	assert.Equal(t, 1, sr.DeduplicationStats.DuplicatesRemoved)
	assert.InDelta(t, 0.25, sr.DeduplicationStats.Rate, 1e-9)

	require.Len(t, sr.ResultFilePaths, 3, "two per-provider files plus the merged file")
	merged := sr.ResultFilePaths[2]
	assert.Regexp(t, regexp.MustCompile(`^deduplicated_alpha_beta_\d{8}T\d{6}Z\.json$`), filepath.Base(merged))

	docs, err := LoadDocuments(merged)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "alpha", docs[0].Provider, "plan order decides which duplicate survives")
}

func TestExecuteSkipDeduplicate(t *testing.T) {
	alpha := &fakeProvider{name: "alpha", docs: []Document{{Title: "A", DOI: "10.1/a", Provider: "alpha"}}}
	beta := &fakeProvider{name: "beta", docs: []Document{{Title: "A", DOI: "10.1/a", Provider: "beta"}}}

	exec, _ := newTestExecutor(t, nil, alpha, beta)
	sr, _, err := exec.Execute(context.Background(), "p1", execPlan("alpha", "beta"), Options{SkipDeduplicate: true})

	require.NoError(t, err)
	assert.Equal(t, 2, sr.TotalResults)
	assert.Equal(t, 2, sr.DeduplicatedCount)
	assert.Zero(t, sr.DeduplicationStats.DuplicatesRemoved)
	require.Len(t, sr.ResultFilePaths, 2)
	for _, p := range sr.ResultFilePaths {
		assert.NotContains(t, filepath.Base(p), "deduplicated_")
	}
}

func TestExecuteCancellationWritesNothing(t *testing.T) {
	slow := &fakeProvider{name: "alpha", delay: 2 * time.Second, docs: []Document{{Title: "Late"}}}

	exec, store := newTestExecutor(t, nil, slow)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	sr, _, err := exec.Execute(ctx, "p1", execPlan("alpha"), Options{})

	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindTimeout))
	assert.Nil(t, sr)

	_, statErr := os.Stat(store.ResultsDir("p1"))
	assert.True(t, os.IsNotExist(statErr), "a canceled run must write no result files")
}

func TestExecuteServesFromCache(t *testing.T) {
	cache := newTestCache(t, time.Hour)
	query := `"screening" AND "automation"`
	cached := []Document{
		{Title: "From Cache", DOI: "10.9/c", Provider: "alpha", Fingerprint: "from cache||0"},
	}
	cache.Put("alpha", query, 25, cached)

	alpha := &fakeProvider{name: "alpha", docs: []Document{{Title: "Fresh"}}}
	beta := &fakeProvider{name: "beta", docs: []Document{{Title: "Beta Doc", DOI: "10.9/b", Provider: "beta"}}}

	exec, _ := newTestExecutor(t, cache, alpha, beta)
	sr, _, err := exec.Execute(context.Background(), "p1", execPlan("alpha", "beta"), Options{MaxResultsPerDB: 25})

	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&alpha.calls), "cached provider is not re-queried")
	assert.Equal(t, int32(1), atomic.LoadInt32(&beta.calls))
	assert.Equal(t, 2, sr.TotalResults)

	fresh, ok := cache.Get("beta", query, 25)
	require.True(t, ok, "uncached responses are stored for the next run")
	require.Len(t, fresh, 1)
	assert.Equal(t, "Beta Doc", fresh[0].Title)
}

func TestExecuteEmptyProviderResultStillCounts(t *testing.T) {
	empty := &fakeProvider{name: "alpha"}

	exec, _ := newTestExecutor(t, nil, empty)
	sr, warnings, err := exec.Execute(context.Background(), "p1", execPlan("alpha"), Options{})

	require.NoError(t, err, "zero hits is a successful search, not a failure")
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"alpha"}, sr.DatabasesSearched)
	assert.Zero(t, sr.TotalResults)
	require.Len(t, sr.ResultFilePaths, 1)

	docs, err := LoadDocuments(sr.ResultFilePaths[0])
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadDocumentsFaults(t *testing.T) {
	_, err := LoadDocuments(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, fault.IsKind(err, fault.KindNotFound))

	corrupt := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0644))
	_, err = LoadDocuments(corrupt)
	assert.True(t, fault.IsKind(err, fault.KindCorrupt))
}
