package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chronicle/internal/audit/metrics"
	"chronicle/pkg/requestcontext"
)

// Recorder is the single write path into the audit trail. Appends are strictly
// best-effort relative to the mutation they describe: a failing store is logged
// and counted, never surfaced, so auditing stays invisible on both the happy
// and the unhappy path of the thing it audits.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRecorder constructs a recorder writing to the given store.
func NewRecorder(store Store, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, metrics: m}
}

// Record appends a record, swallowing store failures. Returns the assigned
// record ID, or uuid.Nil when the append was skipped or failed.
func (r *Recorder) Record(ctx context.Context, record Record) RecordID {
	if record.Timestamp.IsZero() {
		record.Timestamp = requestcontext.Now(ctx)
	}

	start := time.Now()
	id, err := r.store.Append(ctx, record)
	r.metrics.ObserveAppendLatency(time.Since(start))

	switch {
	case errors.Is(err, ErrStoreNotReady):
		// Bootstrap window: the audit surface does not exist yet.
		r.metrics.IncrementSkippedNotReady()
		r.logger.DebugContext(ctx, "audit store not provisioned, record skipped",
			"action", record.Action,
			"entity_type", record.EntityType,
		)
		return uuid.Nil
	case err != nil:
		r.metrics.IncrementAppendFailure()
		r.logger.ErrorContext(ctx, "audit append failed",
			"error", err,
			"action", record.Action,
			"entity_type", record.EntityType,
			"entity_id", record.EntityID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return uuid.Nil
	}

	r.metrics.IncrementAppended(string(record.Action))
	return id
}

// -----------------------------------------------------------------------------
// Authentication events
// -----------------------------------------------------------------------------

// AuthEntityType labels login/logout/failed-login records.
const AuthEntityType = "auth.User"

// RecordLogin appends a LOGIN record for a successful sign-in. Attribution is
// read from the context, so callers install the actor before recording.
func (r *Recorder) RecordLogin(ctx context.Context, username string) RecordID {
	actorID, sourceIP, sessionKey := Attribution(ctx)
	return r.Record(ctx, Record{
		Action:     ActionLogin,
		EntityType: AuthEntityType,
		EntityID:   actorID,
		After:      Snapshot{"username": username},
		ActorID:    actorID,
		SourceIP:   sourceIP,
		SessionKey: sessionKey,
	})
}

// RecordLogout appends a LOGOUT record for a sign-out.
func (r *Recorder) RecordLogout(ctx context.Context, username string) RecordID {
	actorID, sourceIP, sessionKey := Attribution(ctx)
	return r.Record(ctx, Record{
		Action:     ActionLogout,
		EntityType: AuthEntityType,
		EntityID:   actorID,
		Before:     Snapshot{"username": username},
		ActorID:    actorID,
		SourceIP:   sourceIP,
		SessionKey: sessionKey,
	})
}

// RecordFailedLogin appends a FAILED_LOGIN record. The credential was not
// valid, so there is no authenticated actor: only IP and session context are
// attached.
func (r *Recorder) RecordFailedLogin(ctx context.Context, attemptedUsername string) RecordID {
	_, sourceIP, sessionKey := Attribution(ctx)
	return r.Record(ctx, Record{
		Action:     ActionFailedLogin,
		EntityType: AuthEntityType,
		Before:     Snapshot{"attemptedUsername": attemptedUsername},
		SourceIP:   sourceIP,
		SessionKey: sessionKey,
	})
}

// -----------------------------------------------------------------------------
// System events
// -----------------------------------------------------------------------------

// RecordSystem appends a SYSTEM record under a synthetic entity type label
// (e.g. "system.Backup"). One-shot operations pass a nil before; restore-type
// operations that replace another system's state may carry a prior-state label.
func (r *Recorder) RecordSystem(ctx context.Context, label string, before, after Snapshot) RecordID {
	actorID, sourceIP, sessionKey := Attribution(ctx)
	return r.Record(ctx, Record{
		Action:     ActionSystem,
		EntityType: label,
		Before:     before,
		After:      after,
		ActorID:    actorID,
		SourceIP:   sourceIP,
		SessionKey: sessionKey,
	})
}
