package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidConnection is returned when a SocialConnection is given with
// zero or both of PageID/AccountID set.
var ErrInvalidConnection = errors.New("social connection must set exactly one of page_id or account_id")

// CreateTenant inserts a new operator account.
func (s *Store) CreateTenant(ctx context.Context, t Tenant) (*Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO tenants (id, email, role, created_at, deleted_at) VALUES ($1, $2, $3, $4, $5)
	`), t.ID, t.Email, string(t.Role), t.CreatedAt.Format(time.RFC3339Nano), nullTimeString(t.DeletedAt))
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return &t, nil
}

// Tenant fetches a tenant by id.
func (s *Store) Tenant(ctx context.Context, id string) (*Tenant, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, email, role, created_at, deleted_at FROM tenants WHERE id = $1
	`), id)

	var t Tenant
	var role, createdAt string
	var deletedAt sql.NullString
	if err := row.Scan(&t.ID, &t.Email, &role, &createdAt, &deletedAt); err != nil {
		return nil, err
	}
	t.Role = TenantRole(role)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if deletedAt.Valid {
		ts, _ := time.Parse(time.RFC3339Nano, deletedAt.String)
		t.DeletedAt = &ts
	}
	return &t, nil
}

// SoftDeleteTenant marks a tenant deleted without erasing its row, honoring
// the data-deletion request flow's audit requirement.
func (s *Store) SoftDeleteTenant(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE tenants SET deleted_at = $1 WHERE id = $2`), now, id)
	if err != nil {
		return fmt.Errorf("soft delete tenant %s: %w", id, err)
	}
	return nil
}

// ScopeID returns whichever of PageID/AccountID is set — the id the
// provider send endpoint is scoped to.
func (c *SocialConnection) ScopeID() string {
	if c.PageID != nil {
		return *c.PageID
	}
	if c.AccountID != nil {
		return *c.AccountID
	}
	return ""
}

// CreateSocialConnection inserts a page or photo-account connection,
// rejecting any row that doesn't set exactly one of PageID/AccountID.
func (s *Store) CreateSocialConnection(ctx context.Context, c SocialConnection) (*SocialConnection, error) {
	if (c.PageID == nil) == (c.AccountID == nil) {
		return nil, ErrInvalidConnection
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO social_connections (id, tenant_id, page_id, account_id, access_token, token_expiry, refreshed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`), c.ID, c.TenantID, nullString(c.PageID), nullString(c.AccountID), c.AccessToken,
		c.TokenExpiry.Format(time.RFC3339Nano), nullTimeString(c.RefreshedAt), c.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert social connection: %w", err)
	}
	return &c, nil
}

// SocialConnectionsExpiringBefore returns connections whose token_expiry
// falls before cutoff, for the proactive credential-refresh sweep.
func (s *Store) SocialConnectionsExpiringBefore(ctx context.Context, cutoff time.Time) ([]SocialConnection, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, tenant_id, page_id, account_id, access_token, token_expiry, refreshed_at, created_at
		FROM social_connections WHERE token_expiry < $1
	`), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("select expiring connections: %w", err)
	}
	defer rows.Close()

	var out []SocialConnection
	for rows.Next() {
		c, err := scanSocialConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// UpdateSocialConnectionToken persists a refreshed access token.
func (s *Store) UpdateSocialConnectionToken(ctx context.Context, id, accessToken string, expiry time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE social_connections SET access_token = $1, token_expiry = $2, refreshed_at = $3 WHERE id = $4
	`), accessToken, expiry.UTC().Format(time.RFC3339Nano), now, id)
	if err != nil {
		return fmt.Errorf("update social connection token %s: %w", id, err)
	}
	return nil
}

// SocialConnectionByScope resolves the connection that owns a page or
// photo-account id for a tenant, so the Worker can look up send
// credentials from nothing but the webhook's (tenant, recipient) pair.
func (s *Store) SocialConnectionByScope(ctx context.Context, tenantID, scopeID string) (*SocialConnection, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, tenant_id, page_id, account_id, access_token, token_expiry, refreshed_at, created_at
		FROM social_connections WHERE tenant_id = $1 AND (page_id = $2 OR account_id = $2)
	`), tenantID, scopeID)

	var c SocialConnection
	var pageID, accountID, refreshedAt sql.NullString
	var tokenExpiry, createdAt string
	err := row.Scan(&c.ID, &c.TenantID, &pageID, &accountID, &c.AccessToken, &tokenExpiry, &refreshedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	if pageID.Valid {
		c.PageID = &pageID.String
	}
	if accountID.Valid {
		c.AccountID = &accountID.String
	}
	if refreshedAt.Valid {
		ts, _ := time.Parse(time.RFC3339Nano, refreshedAt.String)
		c.RefreshedAt = &ts
	}
	c.TokenExpiry, _ = time.Parse(time.RFC3339Nano, tokenExpiry)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

func scanSocialConnection(rows *sql.Rows) (*SocialConnection, error) {
	var c SocialConnection
	var pageID, accountID, refreshedAt sql.NullString
	var tokenExpiry, createdAt string

	err := rows.Scan(&c.ID, &c.TenantID, &pageID, &accountID, &c.AccessToken, &tokenExpiry, &refreshedAt, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan social connection: %w", err)
	}
	if pageID.Valid {
		c.PageID = &pageID.String
	}
	if accountID.Valid {
		c.AccountID = &accountID.String
	}
	if refreshedAt.Valid {
		ts, _ := time.Parse(time.RFC3339Nano, refreshedAt.String)
		c.RefreshedAt = &ts
	}
	c.TokenExpiry, _ = time.Parse(time.RFC3339Nano, tokenExpiry)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

// WebhookConfigByVerificationToken finds the active registration whose
// verification_token matches the subscribe handshake's hub.verify_token.
func (s *Store) WebhookConfigByVerificationToken(ctx context.Context, tenantID string, platform Platform, token string) (*WebhookConfig, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, tenant_id, platform, verification_token, webhook_url, generated_url, is_active
		FROM webhook_configs WHERE tenant_id = $1 AND platform = $2 AND verification_token = $3 AND is_active = 1
	`), tenantID, string(platform), token)
	return scanWebhookConfig(row)
}

// WebhookConfigByNonce resolves the active registration for (tenantID,
// platform) of the inbound callback path; the nonce segment itself is not
// part of the lookup.
func (s *Store) WebhookConfigByNonce(ctx context.Context, tenantID string, platform Platform) (*WebhookConfig, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, tenant_id, platform, verification_token, webhook_url, generated_url, is_active
		FROM webhook_configs WHERE tenant_id = $1 AND platform = $2 AND is_active = 1
	`), tenantID, string(platform))
	return scanWebhookConfig(row)
}

func scanWebhookConfig(row *sql.Row) (*WebhookConfig, error) {
	var wc WebhookConfig
	var platform string
	var webhookURL, generatedURL sql.NullString
	var isActive int

	err := row.Scan(&wc.ID, &wc.TenantID, &platform, &wc.VerificationToken, &webhookURL, &generatedURL, &isActive)
	if err != nil {
		return nil, err
	}
	wc.Platform = Platform(platform)
	wc.IsActive = isActive != 0
	if webhookURL.Valid {
		wc.WebhookURL = &webhookURL.String
	}
	if generatedURL.Valid {
		wc.GeneratedURL = &generatedURL.String
	}
	return &wc, nil
}

// AIProjectBindingForTenant returns the active AI-runtime project a
// tenant's events should be dispatched to.
func (s *Store) AIProjectBindingForTenant(ctx context.Context, tenantID string) (*AIProjectBinding, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, tenant_id, project_id, runtime_config, api_key, active
		FROM ai_project_bindings WHERE tenant_id = $1 AND active = 1
	`), tenantID)

	var b AIProjectBinding
	var active int
	if err := row.Scan(&b.ID, &b.TenantID, &b.ProjectID, &b.RuntimeConfig, &b.APIKey, &active); err != nil {
		return nil, err
	}
	b.Active = active != 0
	return &b, nil
}

// GetOrCreateConversation finds the thread for (tenantID, platform,
// externalThreadID), creating one bound to sessionID if absent.
func (s *Store) GetOrCreateConversation(ctx context.Context, tenantID string, platform Platform, externalThreadID, participantID, sessionID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, tenant_id, platform, external_thread_id, participant_id, last_message_at, session_id
		FROM conversations WHERE tenant_id = $1 AND platform = $2 AND external_thread_id = $3
	`), tenantID, string(platform), externalThreadID)

	conv, err := scanConversation(row)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}

	now := time.Now().UTC()
	conv = &Conversation{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		Platform:         platform,
		ExternalThreadID: externalThreadID,
		ParticipantID:    participantID,
		LastMessageAt:    now,
		SessionID:        sessionID,
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO conversations (id, tenant_id, platform, external_thread_id, participant_id, last_message_at, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`), conv.ID, conv.TenantID, string(conv.Platform), conv.ExternalThreadID, conv.ParticipantID,
		conv.LastMessageAt.Format(time.RFC3339Nano), conv.SessionID)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

// TouchConversation advances last_message_at. Callers must only call this
// with a timestamp at or after the current value — last_message_at is
// monotonic per conversation.
func (s *Store) TouchConversation(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE conversations SET last_message_at = $1 WHERE id = $2 AND last_message_at <= $1
	`), at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("touch conversation %s: %w", id, err)
	}
	return nil
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var platform, lastMessageAt string
	if err := row.Scan(&c.ID, &c.TenantID, &platform, &c.ExternalThreadID, &c.ParticipantID, &lastMessageAt, &c.SessionID); err != nil {
		return nil, err
	}
	c.Platform = Platform(platform)
	c.LastMessageAt, _ = time.Parse(time.RFC3339Nano, lastMessageAt)
	return &c, nil
}

// AppendMessage records one exchange in a conversation's transcript.
func (s *Store) AppendMessage(ctx context.Context, m Message) (*Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO messages (id, conversation_id, sender, content, external_id, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`), m.ID, m.ConversationID, string(m.Sender), m.Content, nullString(m.ExternalID), m.SentAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &m, nil
}

// MessagesByConversation returns a conversation's transcript, oldest first.
func (s *Store) MessagesByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, conversation_id, sender, content, external_id, sent_at
		FROM messages WHERE conversation_id = $1 ORDER BY sent_at ASC
	`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var sender string
		var externalID sql.NullString
		var sentAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Content, &externalID, &sentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = MessageSender(sender)
		if externalID.Valid {
			m.ExternalID = &externalID.String
		}
		m.SentAt, _ = time.Parse(time.RFC3339Nano, sentAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeadLettersByTenant lists parked failures for operator review.
func (s *Store) DeadLettersByTenant(ctx context.Context, tenantID string) ([]DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, tenant_id, original_payload, error, metadata, failed_at, status
		FROM dead_letters WHERE tenant_id = $1 ORDER BY failed_at DESC
	`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("select dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var dl DeadLetter
		var failedAt string
		if err := rows.Scan(&dl.ID, &dl.TenantID, &dl.OriginalPayload, &dl.Error, &dl.Metadata, &failedAt, &dl.Status); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		dl.FailedAt, _ = time.Parse(time.RFC3339Nano, failedAt)
		out = append(out, dl)
	}
	return out, rows.Err()
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTimeString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
