package audit

import (
	"context"
	"errors"
)

// ErrStoreNotReady signals that the audit storage surface has not been
// provisioned yet (initial schema bootstrap). The recorder treats it as a
// silent skip; it never reaches the caller of the primary mutation.
var ErrStoreNotReady = errors.New("audit store not ready")

// Store is append-only persistence for audit records.
//
// Implementations must be safe for concurrent use and must never update or
// delete records through this interface. Append assigns the record ID and a
// timestamp that is non-decreasing in insertion order.
type Store interface {
	Append(ctx context.Context, record Record) (RecordID, error)
	FindByID(ctx context.Context, id RecordID) (Record, error)
	Find(ctx context.Context, filter Filter) ([]Record, error)
}
