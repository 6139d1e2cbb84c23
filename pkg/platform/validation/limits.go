package validation

import (
	"fmt"

	dErrors "credvault/pkg/domain-errors"
)

// HTTP body limits
const (
	// MaxBodySize is the maximum allowed request body size (64 KB).
	// Sufficient for JSON APIs while preventing memory exhaustion attacks.
	MaxBodySize = 64 * 1024
)

// String element length limits
const (
	// MaxDIDLength is the maximum length of a subject identifier.
	MaxDIDLength = 255

	// MaxSecretLength is the maximum length of an unlock secret. bcrypt
	// truncates input at 72 bytes, so longer secrets add no entropy.
	MaxSecretLength = 72

	// MaxSampleLength is the maximum length of a biometric sample payload.
	MaxSampleLength = 4096
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
