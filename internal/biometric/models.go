package biometric

import (
	"time"

	id "credvault/pkg/domain"
)

// Modality tags which sensor produced a verification sample.
type Modality string

const (
	ModalityFingerprint Modality = "fingerprint"
	ModalityFace        Modality = "face"
	ModalityVoice       Modality = "voice"
)

// Valid reports whether the modality is one of the supported sensors.
func (m Modality) Valid() bool {
	switch m {
	case ModalityFingerprint, ModalityFace, ModalityVoice:
		return true
	}
	return false
}

// Session is an ephemeral verification challenge. A session is single-use for
// authorization: once it authorizes a refresh it is consumed and cannot be
// replayed inside its validity window.
type Session struct {
	ID           id.SessionID `json:"session_id"`
	Subject      id.DID       `json:"subject_did"`
	StartedAt    time.Time    `json:"started_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
	Verified     bool         `json:"verified"`
	Consumed     bool         `json:"-"`
	Modality     Modality     `json:"modality"`
	QualityScore int          `json:"quality_score"`
}

// Expired reports whether the session's challenge window has passed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// VerifyResult is the outcome of scoring one verification sample.
type VerifyResult struct {
	Success      bool   `json:"success"`
	QualityScore int    `json:"quality_score"`
	Reason       string `json:"reason,omitempty"`
}
