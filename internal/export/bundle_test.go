package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slrforge/internal/artifact"
	"slrforge/internal/search"
)

func TestBundlerWritesAllExports(t *testing.T) {
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	docs := []search.Document{
		{Title: "Alpha Study", Authors: []string{"Jane Doe"}, Year: 2021, DOI: "10.1/a", Venue: "V", Provider: "openalex"},
		{Title: "Beta Notes", Year: 2019, Provider: "arxiv"},
	}

	bundle, warnings, err := NewBundler(store).Export("p1", docs, fullProtocolInputs())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.NotNil(t, bundle)

	assert.Equal(t, "p1", bundle.ProjectID)
	assert.Equal(t, artifact.StatusDraft, bundle.Status)
	assert.Empty(t, bundle.Notes)

	require.Len(t, bundle.ExportedFiles, 4)
	names := make([]string, 0, 4)
	for _, p := range bundle.ExportedFiles {
		names = append(names, filepath.Base(p))
		info, statErr := os.Stat(p)
		require.NoError(t, statErr, "exported path %s must exist", p)
		assert.Positive(t, info.Size())
	}
	assert.Equal(t, []string{CSVFileName, BibTeXFileName, RISFileName, ProtocolFileName}, names)

	require.NoError(t, artifact.Validate(bundle))

	protocol, err := os.ReadFile(bundle.ExportedFiles[3])
	require.NoError(t, err)
	assert.Contains(t, string(protocol), "LLM Hallucination Mitigation")
}

func TestBundlerExportsProtocolWithoutDocuments(t *testing.T) {
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	bundle, warnings, err := NewBundler(store).Export("p1", nil, ProtocolInputs{
		Project: &artifact.ProjectContext{ID: "p1", Title: "Docless"},
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, bundle.ExportedFiles, 4)

	csvData, err := os.ReadFile(bundle.ExportedFiles[0])
	require.NoError(t, err)
	rows := parseCSV(t, csvData)
	assert.Len(t, rows, 1, "header-only spreadsheet when no documents were collected")
}

func TestBundlerFilesLandInExportDir(t *testing.T) {
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	bundle, _, err := NewBundler(store).Export("p9", nil, ProtocolInputs{})
	require.NoError(t, err)

	for _, p := range bundle.ExportedFiles {
		assert.Equal(t, filepath.Join(store.BaseDir(), "p9", "export"), filepath.Dir(p))
	}
}
