package worker

import (
	"context"

	"chronicle/internal/audit"
)

// Worker drains system and authentication events from a channel into the
// recorder. Background jobs (backup runners, schedulers) push completed-run
// records here so they never block on audit persistence; mutation hooks do
// not use this path, because their records must not race ahead of or behind
// the write they describe.
type Worker struct {
	recorder *audit.Recorder
	inbox    <-chan audit.Record
}

// NewWorker constructs a worker consuming from inbox.
func NewWorker(recorder *audit.Recorder, inbox <-chan audit.Record) *Worker {
	return &Worker{recorder: recorder, inbox: inbox}
}

// Run consumes until the context is cancelled. Append failures are already
// swallowed by the recorder, so the loop only stops on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record := <-w.inbox:
			w.recorder.Record(ctx, record)
		}
	}
}
