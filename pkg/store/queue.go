package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxRetries mirrors the spec's dead-letter threshold: a claimed event
// whose retry_count reaches this value on a transient failure is routed
// to failed instead of back to pending.
const MaxRetries = 3

// Enqueue atomically inserts a QueuedEvent and its `received`
// ProcessingTrace. A second delivery of a payload that fingerprints
// identically to one already queued is absorbed — duplicate reports true
// and evt is the original row, never a second insert — so a provider
// redelivering a webhook it didn't get a prompt 200 for doesn't double
// the event.
func (s *Store) Enqueue(ctx context.Context, evt QueuedEvent) (_ *QueuedEvent, duplicate bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer tx.Rollback()

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.Status = EventPending
	evt.RetryCount = 0
	evt.CreatedAt = time.Now().UTC()

	res, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO queued_events (id, tenant_id, platform, sender_id, recipient_id, raw_payload, fingerprint, event_ts, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (fingerprint) DO NOTHING
	`), evt.ID, evt.TenantID, string(evt.Platform), evt.SenderID, evt.RecipientID, evt.RawPayload,
		evt.Fingerprint, evt.EventTS.UTC().Format(time.RFC3339Nano), string(evt.Status), evt.RetryCount,
		evt.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, false, fmt.Errorf("insert queued_event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Already queued under this fingerprint — fetch and report it as a
		// duplicate rather than silently dropping the delivery.
		existing, findErr := s.findByFingerprintTx(ctx, tx, evt.Fingerprint)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, true, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO processing_traces (id, queued_event_id, stage, status, metadata, ts)
		VALUES ($1, $2, 'received', $3, '{}', $4)
	`), uuid.NewString(), evt.ID, string(TraceCompleted), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, false, fmt.Errorf("insert received trace: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit enqueue tx: %w", err)
	}
	return &evt, false, nil
}

func (s *Store) findByFingerprintTx(ctx context.Context, tx *sql.Tx, fingerprint string) (*QueuedEvent, error) {
	row := tx.QueryRowContext(ctx, s.q(`
		SELECT id, tenant_id, platform, sender_id, recipient_id, raw_payload, fingerprint, event_ts, status, retry_count, last_retry_at, error, completed_at, created_at
		FROM queued_events WHERE fingerprint = $1
	`), fingerprint)
	return scanQueuedEvent(row)
}

// Claim selects up to batchSize pending, retryable events ordered by
// creation time and atomically transitions each to processing, bumping
// retry_count and last_retry_at. Rows another claimer won races away are
// silently skipped rather than erroring.
func (s *Store) Claim(ctx context.Context, batchSize int) ([]QueuedEvent, error) {
	if batchSize <= 0 {
		batchSize = 5
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id FROM queued_events
		WHERE status = $1 AND retry_count < $2
		ORDER BY created_at ASC
		LIMIT $3
	`), string(EventPending), MaxRetries, batchSize)
	if err != nil {
		return nil, fmt.Errorf("select claimable: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan claimable id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	claimed := make([]QueuedEvent, 0, len(ids))
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, s.q(`
			UPDATE queued_events
			SET status = $1, retry_count = retry_count + 1, last_retry_at = $2
			WHERE id = $3 AND status = $4
			RETURNING id, tenant_id, platform, sender_id, recipient_id, raw_payload, fingerprint, event_ts, status, retry_count, last_retry_at, error, completed_at, created_at
		`), string(EventProcessing), now, id, string(EventPending))

		evt, err := scanQueuedEvent(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue // raced by another claimer or the reaper
		}
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", id, err)
		}
		claimed = append(claimed, *evt)
	}

	return claimed, nil
}

// ReapStaleClaims reverts any row stuck in processing past staleAfter back
// to pending, so a worker that crashed mid-event doesn't strand it
// forever. Called at the start of every drain, per spec.
func (s *Store) ReapStaleClaims(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleAfter).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE queued_events SET status = $1
		WHERE status = $2 AND last_retry_at < $3
	`), string(EventPending), string(EventProcessing), cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap stale claims: %w", err)
	}
	return res.RowsAffected()
}

// CompleteEvent finalizes a successfully processed event.
func (s *Store) CompleteEvent(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE queued_events SET status = $1, completed_at = $2 WHERE id = $3
	`), string(EventCompleted), now, id)
	if err != nil {
		return fmt.Errorf("complete event %s: %w", id, err)
	}
	return nil
}

// RequeueEvent reverts a transiently-failed event back to pending for
// another drain pass. Callers must only call this when the event's
// retry_count (already bumped at claim time) is still below MaxRetries.
func (s *Store) RequeueEvent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE queued_events SET status = $1 WHERE id = $2
	`), string(EventPending), id)
	if err != nil {
		return fmt.Errorf("requeue event %s: %w", id, err)
	}
	return nil
}

// FailEvent marks an event permanently failed — either a non-transient
// error, or a transient one that exhausted MaxRetries.
func (s *Store) FailEvent(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE queued_events SET status = $1, error = $2 WHERE id = $3
	`), string(EventFailed), errMsg, id)
	if err != nil {
		return fmt.Errorf("fail event %s: %w", id, err)
	}
	return nil
}

// AppendTrace records one stage's outcome for an event.
func (s *Store) AppendTrace(ctx context.Context, trace ProcessingTrace) error {
	if trace.ID == "" {
		trace.ID = uuid.NewString()
	}
	if trace.TS.IsZero() {
		trace.TS = time.Now().UTC()
	}
	if trace.Metadata == "" {
		trace.Metadata = "{}"
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO processing_traces (id, queued_event_id, stage, status, error, metadata, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`), trace.ID, trace.QueuedEventID, trace.Stage, string(trace.Status), trace.Error, trace.Metadata,
		trace.TS.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append trace: %w", err)
	}
	return nil
}

// Traces returns every ProcessingTrace recorded for an event, oldest first.
func (s *Store) Traces(ctx context.Context, eventID string) ([]ProcessingTrace, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, queued_event_id, stage, status, error, metadata, ts
		FROM processing_traces WHERE queued_event_id = $1 ORDER BY ts ASC
	`), eventID)
	if err != nil {
		return nil, fmt.Errorf("select traces: %w", err)
	}
	defer rows.Close()

	var traces []ProcessingTrace
	for rows.Next() {
		var t ProcessingTrace
		var errStr sql.NullString
		var ts string
		if err := rows.Scan(&t.ID, &t.QueuedEventID, &t.Stage, &t.Status, &errStr, &t.Metadata, &ts); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		if errStr.Valid {
			t.Error = &errStr.String
		}
		t.TS, _ = time.Parse(time.RFC3339Nano, ts)
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

// InsertDeadLetter parks a terminally-failed event for manual handling.
func (s *Store) InsertDeadLetter(ctx context.Context, dl DeadLetter) error {
	if dl.ID == "" {
		dl.ID = uuid.NewString()
	}
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now().UTC()
	}
	if dl.Status == "" {
		dl.Status = "failed"
	}
	if dl.Metadata == "" {
		dl.Metadata = "{}"
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO dead_letters (id, tenant_id, original_payload, error, metadata, failed_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`), dl.ID, dl.TenantID, dl.OriginalPayload, dl.Error, dl.Metadata, dl.FailedAt.Format(time.RFC3339Nano), dl.Status)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func scanQueuedEvent(row *sql.Row) (*QueuedEvent, error) {
	var evt QueuedEvent
	var platform, status string
	var lastRetryAt, errStr, completedAt sql.NullString
	var eventTS, createdAt string

	err := row.Scan(&evt.ID, &evt.TenantID, &platform, &evt.SenderID, &evt.RecipientID, &evt.RawPayload,
		&evt.Fingerprint, &eventTS, &status, &evt.RetryCount, &lastRetryAt, &errStr, &completedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	evt.Platform = Platform(platform)
	evt.Status = EventStatus(status)
	evt.EventTS, _ = time.Parse(time.RFC3339Nano, eventTS)
	evt.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	if lastRetryAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastRetryAt.String)
		evt.LastRetryAt = &t
	}
	if errStr.Valid {
		evt.Error = &errStr.String
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		evt.CompletedAt = &t
	}

	return &evt, nil
}
