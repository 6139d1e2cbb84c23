package audit

import (
	"context"

	id "credvault/pkg/domain"
)

// Store persists audit events. Implementations must be append-only; events are
// never updated or deleted by the vault.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject id.DID) ([]Event, error)
}
