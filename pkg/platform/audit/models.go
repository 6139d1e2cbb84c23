package audit

import (
	"time"

	id "credvault/pkg/domain"
)

// Event is emitted from vault logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Events carry hashes and
// identifiers only, never raw biometric or passphrase material.
type Event struct {
	Timestamp  time.Time
	Subject    id.DID
	EntryID    string
	Action     string
	Decision   string
	Reason     string
	DurationMS int64
	Success    bool
}

type AuditEvent string

const (
	EventEntryCreated    AuditEvent = "entry_created"
	EventEntryUnlocked   AuditEvent = "entry_unlocked"
	EventEntryLocked     AuditEvent = "entry_locked"
	EventEntryRefreshed  AuditEvent = "entry_refreshed"
	EventEntryAccessed   AuditEvent = "entry_accessed"
	EventEntrySwept      AuditEvent = "entry_swept"
	EventEntryDeleted    AuditEvent = "entry_deleted"
	EventEntryExported   AuditEvent = "entry_exported"
	EventSessionCreated  AuditEvent = "session_created"
	EventSessionVerified AuditEvent = "session_verified"
	EventOperationFailed AuditEvent = "operation_failed"
)
