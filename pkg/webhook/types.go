// Package webhook implements the subscription-verification handshake and
// the provider-variant payload normalizer that together turn a raw inbound
// delivery into a NormalizedMessage ready for the ingestion queue.
package webhook

import "errors"

// ErrEcho signals that the event was the platform's own echo of an
// outbound message and must not be enqueued.
var ErrEcho = errors.New("echo event suppressed")

// ErrUnrecognizedPayload signals a payload that doesn't match either known
// provider variant shape.
var ErrUnrecognizedPayload = errors.New("MALFORMED_PAYLOAD")

// Attachment is a canonical attachment reference, already rendered to its
// textual description per the provider-type mapping table.
type Attachment struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// NormalizedMessage is the canonical shape both platform variants map to.
type NormalizedMessage struct {
	Text         string         `json:"text"`
	Type         string         `json:"type"`
	Attachments  []Attachment   `json:"attachments,omitempty"`
	QuickReplies []string       `json:"quickReplies,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

const (
	TypeText        = "text"
	TypePostback    = "postback"
	TypeQuickReply  = "quick_reply"
	TypeUnsupported = "unsupported"
)
