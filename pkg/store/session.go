package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is the idle lifetime a session is extended to on every
// interaction, absent a per-tenant override.
const DefaultSessionTTL = 365 * 24 * time.Hour

// MaxHistoryTurns bounds Session.Context["conversationHistory"] — older
// turns are dropped FIFO once this many have accumulated.
const MaxHistoryTurns = 50

const historyKey = "conversationHistory"

// GetOrCreateSession returns the session for (tenantID, participantID,
// platform), creating one with a fresh TTL if none exists yet. An existing
// session's expiry is extended to now+ttl on every call, matching the
// "every interaction resets the clock" idle-session contract.
func (s *Store) GetOrCreateSession(ctx context.Context, tenantID, participantID string, platform Platform, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now().UTC()

	sess, err := s.findSession(ctx, tenantID, participantID, platform)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		sess.LastInteraction = now
		sess.ExpiresAt = now.Add(ttl)
		if updErr := s.touchSession(ctx, sess); updErr != nil {
			return nil, updErr
		}
		return sess, nil
	}

	sess = &Session{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		ParticipantID:   participantID,
		Platform:        platform,
		Context:         map[string]any{},
		LastInteraction: now,
		ExpiresAt:       now.Add(ttl),
	}
	ctxJSON, err := json.Marshal(sess.Context)
	if err != nil {
		return nil, fmt.Errorf("marshal session context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO sessions (id, tenant_id, participant_id, platform, context, last_interaction, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`), sess.ID, sess.TenantID, sess.ParticipantID, string(sess.Platform), string(ctxJSON),
		sess.LastInteraction.Format(time.RFC3339Nano), sess.ExpiresAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *Store) findSession(ctx context.Context, tenantID, participantID string, platform Platform) (*Session, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, tenant_id, participant_id, platform, context, last_interaction, expires_at
		FROM sessions WHERE tenant_id = $1 AND participant_id = $2 AND platform = $3
	`), tenantID, participantID, string(platform))
	return scanSession(row)
}

func (s *Store) touchSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE sessions SET last_interaction = $1, expires_at = $2 WHERE id = $3
	`), sess.LastInteraction.Format(time.RFC3339Nano), sess.ExpiresAt.Format(time.RFC3339Nano), sess.ID)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", sess.ID, err)
	}
	return nil
}

// SessionContext returns a session's current context map without locking,
// for read-only use (e.g. seeding an outbound AI runtime call with the
// latest known variables before the call's own context mutations land).
func (s *Store) SessionContext(ctx context.Context, sessionID string) (map[string]any, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT context FROM sessions WHERE id = $1`), sessionID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return nil, fmt.Errorf("read session context %s: %w", sessionID, err)
	}
	var current map[string]any
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return nil, fmt.Errorf("unmarshal session context %s: %w", sessionID, err)
	}
	if current == nil {
		current = map[string]any{}
	}
	return current, nil
}

// MutateContext applies fn to the session's context under a distributed
// lock keyed on the session id, then persists the result — a
// read-modify-write cycle so concurrent deliveries for the same
// participant don't clobber each other's context updates.
func (s *Store) MutateContext(ctx context.Context, locker Locker, sessionID string, fn func(map[string]any) error) error {
	token, err := locker.Lock(ctx, "session:"+sessionID, 10*time.Second)
	if err != nil {
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	defer locker.Unlock(ctx, "session:"+sessionID, token)

	row := s.db.QueryRowContext(ctx, s.q(`SELECT context FROM sessions WHERE id = $1`), sessionID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return fmt.Errorf("read session context %s: %w", sessionID, err)
	}

	var current map[string]any
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return fmt.Errorf("unmarshal session context %s: %w", sessionID, err)
	}
	if current == nil {
		current = map[string]any{}
	}

	if err := fn(current); err != nil {
		return err
	}

	updated, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshal session context %s: %w", sessionID, err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`UPDATE sessions SET context = $1 WHERE id = $2`), string(updated), sessionID)
	if err != nil {
		return fmt.Errorf("persist session context %s: %w", sessionID, err)
	}
	return nil
}

// AppendHistory pushes a turn onto Session.Context["conversationHistory"],
// trimming the oldest entries once more than MaxHistoryTurns have
// accumulated.
func AppendHistory(sessionCtx map[string]any, turn HistoryTurn) error {
	var history []HistoryTurn

	if raw, ok := sessionCtx[historyKey]; ok {
		reencoded, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("reencode existing history: %w", err)
		}
		if err := json.Unmarshal(reencoded, &history); err != nil {
			return fmt.Errorf("decode existing history: %w", err)
		}
	}

	history = append(history, turn)
	sort.SliceStable(history, func(i, j int) bool { return history[i].TS.Before(history[j].TS) })
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}

	sessionCtx[historyKey] = history
	return nil
}

// ExtendExpiry bumps a session's idle TTL from now, called on every
// successful delivery attempt regardless of whether context changed.
func (s *Store) ExtendExpiry(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE sessions SET last_interaction = $1, expires_at = $2 WHERE id = $3
	`), now.Format(time.RFC3339Nano), now.Add(ttl).Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("extend session %s: %w", sessionID, err)
	}
	return nil
}

// DeleteParticipantData erases every record keyed by a participant id
// across all tenants and platforms: their sessions, conversations, and the
// messages inside those conversations. This backs the provider's
// data-deletion callback (C9); it is deliberately unscoped to one tenant
// since the callback carries no tenant context, only the platform-wide
// participant id.
func (s *Store) DeleteParticipantData(ctx context.Context, participantID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin data deletion tx: %w", err)
	}
	defer tx.Rollback()

	convRows, err := tx.QueryContext(ctx, s.q(`SELECT id FROM conversations WHERE participant_id = $1`), participantID)
	if err != nil {
		return 0, fmt.Errorf("select conversations for deletion: %w", err)
	}
	var conversationIDs []string
	for convRows.Next() {
		var id string
		if err := convRows.Scan(&id); err != nil {
			convRows.Close()
			return 0, fmt.Errorf("scan conversation id: %w", err)
		}
		conversationIDs = append(conversationIDs, id)
	}
	if err := convRows.Err(); err != nil {
		convRows.Close()
		return 0, err
	}
	convRows.Close()

	var deleted int64
	for _, id := range conversationIDs {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM messages WHERE conversation_id = $1`), id)
		if err != nil {
			return 0, fmt.Errorf("delete messages for conversation %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += n
		}
	}

	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM conversations WHERE participant_id = $1`), participantID)
	if err != nil {
		return 0, fmt.Errorf("delete conversations: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		deleted += n
	}

	res, err = tx.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE participant_id = $1`), participantID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit data deletion tx: %w", err)
	}
	return deleted, nil
}

// SweepExpired deletes sessions past their expiry, returning how many were
// removed. Meant to run on a periodic ticker, not per-request.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sessions WHERE expires_at < $1`), now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var platform, contextJSON, lastInteraction, expiresAt string

	err := row.Scan(&sess.ID, &sess.TenantID, &sess.ParticipantID, &platform, &contextJSON, &lastInteraction, &expiresAt)
	if err != nil {
		return nil, err
	}

	sess.Platform = Platform(platform)
	sess.LastInteraction, _ = time.Parse(time.RFC3339Nano, lastInteraction)
	sess.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)

	if err := json.Unmarshal([]byte(contextJSON), &sess.Context); err != nil {
		return nil, fmt.Errorf("unmarshal session context: %w", err)
	}
	if sess.Context == nil {
		sess.Context = map[string]any{}
	}

	return &sess, nil
}
