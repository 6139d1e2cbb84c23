// Package bundle defines the reputation bundle collaborator boundary.
//
// The vault stores whatever bundle the assembler returns and asks for
// regeneration on refresh; apart from the Epoch field used for refresh-history
// bookkeeping, bundle contents are opaque to the vault.
package bundle

import (
	"context"
	"time"

	"credvault/internal/credential"
	"credvault/internal/profile"
	id "credvault/pkg/domain"
)

// Bundle is the externally assembled reputation artifact stored alongside a
// credential.
type Bundle struct {
	ID          string         `json:"id"`
	Epoch       string         `json:"epoch"`
	Subject     id.DID         `json:"subject"`
	Tier        id.Tier        `json:"tier"`
	GeneratedAt time.Time      `json:"generated_at"`
	Summary     map[string]any `json:"summary"`
}

// Assembler regenerates reputation bundles. Implemented by the external
// assembly system; the vault only consumes its output.
type Assembler interface {
	Assemble(ctx context.Context, token credential.Token, prof profile.ActivityProfile) (*Bundle, error)
}

// ExportResult reports where an exported bundle landed.
type ExportResult struct {
	Success       bool   `json:"success"`
	Filename      string `json:"filename"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}
