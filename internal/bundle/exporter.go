package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"credvault/internal/credential"
	dErrors "credvault/pkg/domain-errors"
)

// Exporter writes bundles to disk as JSON files with deterministic names
// derived from credential, tier, and timestamp.
type Exporter struct {
	dir string
}

// NewExporter creates an Exporter rooted at dir, creating it if needed.
func NewExporter(dir string) (*Exporter, error) {
	if dir == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "export directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not create export directory")
	}
	return &Exporter{dir: dir}, nil
}

// Export serializes the bundle and reports the resulting file.
func (e *Exporter) Export(b *Bundle, token credential.Token) (ExportResult, error) {
	if b == nil {
		return ExportResult{}, dErrors.New(dErrors.CodeInvalidInput, "no bundle to export")
	}

	name := exportFilename(token)
	path := filepath.Join(e.dir, name)

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return ExportResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not serialize bundle")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ExportResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not write bundle file")
	}

	return ExportResult{
		Success:       true,
		Filename:      name,
		FileSizeBytes: int64(len(data)),
	}, nil
}

// exportFilename derives the deterministic bundle file name.
// Colons in the credential URN are not filesystem-safe on all platforms.
func exportFilename(token credential.Token) string {
	credPart := strings.ReplaceAll(token.ID.String(), ":", "_")
	return fmt.Sprintf("bundle_%s_%s_%d.json", token.Tier, credPart, token.IssuedAt.Unix())
}
