package store

import "time"

type TenantRole string

const (
	RoleAdmin    TenantRole = "admin"
	RoleCustomer TenantRole = "customer"
)

// Tenant is the operator account receiving messages on behalf of its
// connected social assets.
type Tenant struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      TenantRole `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// SocialConnection binds a tenant to a page or a photo-sharing account.
// Exactly one of PageID/AccountID is set.
type SocialConnection struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	PageID      *string    `json:"page_id,omitempty"`
	AccountID   *string    `json:"account_id,omitempty"`
	AccessToken string     `json:"-"`
	TokenExpiry time.Time  `json:"token_expiry"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Platform string

const (
	PlatformPage  Platform = "page"
	PlatformPhoto Platform = "photo"
	PlatformAny   Platform = "any"
)

// WebhookConfig is a per-(tenant, platform) endpoint registration.
type WebhookConfig struct {
	ID                string   `json:"id"`
	TenantID          string   `json:"tenant_id"`
	Platform          Platform `json:"platform"`
	VerificationToken string   `json:"-"`
	WebhookURL        *string  `json:"webhook_url,omitempty"`
	GeneratedURL      *string  `json:"generated_url,omitempty"`
	IsActive          bool     `json:"is_active"`
}

// AIProjectBinding maps a tenant to an AI-runtime project and credentials.
type AIProjectBinding struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	ProjectID     string `json:"project_id"`
	RuntimeConfig string `json:"runtime_config"` // opaque JSON
	APIKey        string `json:"-"`
	Active        bool   `json:"active"`
}

// Session is per-(tenant, participant, platform) dialog context.
type Session struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id"`
	ParticipantID   string         `json:"participant_id"`
	Platform        Platform       `json:"platform"`
	Context         map[string]any `json:"context"`
	LastInteraction time.Time      `json:"last_interaction"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// HistoryTurn is one entry of Session.Context["conversationHistory"].
type HistoryTurn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	TS      time.Time `json:"ts"`
}

// Conversation is the logical thread between a participant and a tenant
// asset.
type Conversation struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	Platform         Platform  `json:"platform"`
	ExternalThreadID string    `json:"external_thread_id"`
	ParticipantID    string    `json:"participant_id"`
	LastMessageAt    time.Time `json:"last_message_at"`
	SessionID        string    `json:"session_id"`
}

type MessageSender string

const (
	SenderUser      MessageSender = "user"
	SenderAssistant MessageSender = "assistant"
)

// Message is one atomic exchange record.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Sender         MessageSender `json:"sender"`
	Content        string        `json:"content"`
	ExternalID     *string       `json:"external_id,omitempty"`
	SentAt         time.Time     `json:"sent_at"`
}

type EventStatus string

const (
	EventPending    EventStatus = "pending"
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
)

// QueuedEvent is a durable record of an inbound webhook event awaiting
// processing.
type QueuedEvent struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	Platform    Platform    `json:"platform"`
	SenderID    string      `json:"sender_id"`
	RecipientID string      `json:"recipient_id"`
	RawPayload  []byte      `json:"raw_payload"`
	Fingerprint string      `json:"fingerprint"`
	EventTS     time.Time   `json:"event_ts"`
	Status      EventStatus `json:"status"`
	RetryCount  int         `json:"retry_count"`
	LastRetryAt *time.Time  `json:"last_retry_at,omitempty"`
	Error       *string     `json:"error,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type TraceStatus string

const (
	TraceCompleted TraceStatus = "completed"
	TraceFailed    TraceStatus = "failed"
)

// ProcessingTrace is an append-only per-event audit record.
type ProcessingTrace struct {
	ID            string      `json:"id"`
	QueuedEventID string      `json:"queued_event_id"`
	Stage         string      `json:"stage"`
	Status        TraceStatus `json:"status"`
	Error         *string     `json:"error,omitempty"`
	Metadata      string      `json:"metadata,omitempty"` // opaque JSON
	TS            time.Time   `json:"ts"`
}

// DeadLetter is a terminally-failed event parked for manual handling.
type DeadLetter struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	OriginalPayload []byte    `json:"original_payload"`
	Error           string    `json:"error"`
	Metadata        string    `json:"metadata,omitempty"`
	FailedAt        time.Time `json:"failed_at"`
	Status          string    `json:"status"`
}
