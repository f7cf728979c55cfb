// Package export serializes collected documents and approved artifacts into
// shareable formats: CSV, BibTeX and RIS for the documents, a Markdown
// protocol for the strategy, and a bundle that writes all four under the
// project's export directory.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"slrforge/internal/artifact"
	"slrforge/internal/fault"
	"slrforge/internal/logging"
	"slrforge/internal/search"
)

// Bundle names, fixed so downstream tooling can find them.
const (
	CSVFileName      = "papers.csv"
	BibTeXFileName   = "papers.bib"
	RISFileName      = "papers.ris"
	ProtocolFileName = "protocol.md"
)

// Bundler writes the full export set for a project and composes the
// StrategyExportBundle artifact. Individual file failures become warnings;
// the export fails outright only when nothing could be written.
type Bundler struct {
	store *artifact.Store
}

func NewBundler(store *artifact.Store) *Bundler {
	return &Bundler{store: store}
}

// Export writes papers.csv, papers.bib, papers.ris and protocol.md under
// <project>/export/ and returns the bundle artifact in draft status.
func (b *Bundler) Export(projectID string, docs []search.Document, in ProtocolInputs) (*artifact.StrategyExportBundle, []string, error) {
	dir, err := b.store.ExportDir(projectID)
	if err != nil {
		return nil, nil, err
	}

	aud := logging.AuditFor(projectID)
	var (
		files    []string
		warnings []string
	)
	write := func(name string, data []byte, genErr error) {
		if genErr != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", name, genErr))
			logging.ExportWarn("Skipping %s: %v", name, genErr)
			return
		}
		path := filepath.Join(dir, name)
		if werr := os.WriteFile(path, data, 0644); werr != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", name, werr))
			logging.ExportWarn("Failed to write %s: %v", path, werr)
			return
		}
		files = append(files, path)
		aud.ExportWrite(path, int64(len(data)))
		logging.Export("Wrote %s (%d bytes)", path, len(data))
	}

	csvData, csvErr := CSV(docs)
	write(CSVFileName, csvData, csvErr)
	write(BibTeXFileName, BibTeX(docs), nil)
	write(RISFileName, RIS(docs), nil)
	write(ProtocolFileName, Protocol(in), nil)

	if len(files) == 0 {
		return nil, warnings, fault.IO(nil, "no export files could be written for project %s", projectID)
	}

	bundle := &artifact.StrategyExportBundle{
		Header:        artifact.Header{ProjectID: projectID, Status: artifact.StatusDraft},
		ExportedFiles: files,
	}
	if len(warnings) > 0 {
		bundle.Notes = "partial export: " + strings.Join(warnings, "; ")
	}
	return bundle, warnings, nil
}
