// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "credvault/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing an EntryID where a SessionID is expected.
type (
	EntryID   uuid.UUID
	SessionID uuid.UUID
	RefreshID uuid.UUID
)

// CredentialID is a prefixed URN-style identifier for minted credentials
// (e.g., "urn:cred:3f1c...").
type CredentialID string

// DID is a subject identifier with the structural form scheme:method:identifier.
type DID string

// New functions - used where fresh identifiers are minted.

func NewEntryID() EntryID     { return EntryID(uuid.New()) }
func NewSessionID() SessionID { return SessionID(uuid.New()) }
func NewRefreshID() RefreshID { return RefreshID(uuid.New()) }

// NewCredentialID derives a fresh credential identifier. The UUID stands in
// for a content-addressed or signed identifier scheme.
func NewCredentialID() CredentialID {
	return CredentialID("urn:cred:" + uuid.NewString())
}

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseEntryID(s string) (EntryID, error) {
	id, err := parseUUID(s, "entry ID")
	return EntryID(id), err
}

func ParseSessionID(s string) (SessionID, error) {
	id, err := parseUUID(s, "session ID")
	return SessionID(id), err
}

// ParseDID validates the scheme:method:identifier structure of a subject identifier.
func ParseDID(s string) (DID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidSubject, "subject DID cannot be empty")
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return "", dErrors.New(dErrors.CodeInvalidSubject, "subject DID must have the form scheme:method:identifier")
	}
	for _, part := range parts {
		if part == "" {
			return "", dErrors.New(dErrors.CodeInvalidSubject, "subject DID segments cannot be empty")
		}
	}
	return DID(s), nil
}

// String methods - for logging and debugging.

func (id EntryID) String() string      { return uuid.UUID(id).String() }
func (id SessionID) String() string    { return uuid.UUID(id).String() }
func (id RefreshID) String() string    { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return string(id) }
func (d DID) String() string           { return string(d) }

// IsNil checks - used for service-layer validation.

func (id EntryID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RefreshID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool { return id == "" }
func (d DID) IsNil() bool           { return d == "" }

// parseUUID is the shared validation logic.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
