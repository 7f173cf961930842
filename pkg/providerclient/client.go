// Package providerclient sends outbound replies back to the social
// platform that originated a conversation.
package providerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/CRT-AUTO/bridge-core/pkg/config"
)

// DefaultTimeout is the per-call budget for the outbound send endpoint
// (spec §6: provider send API, 10s).
const DefaultTimeout = 10 * time.Second

// MaxQuickReplies is the platform-imposed cap on quick_replies entries.
const MaxQuickReplies = 13

// Client sends formatted replies to a provider's messages endpoint.
type Client struct {
	httpClient *http.Client
}

// New builds a send Client.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Recipient addresses the outbound message to a single participant.
type Recipient struct {
	ID string `json:"id"`
}

// OutboundAttachment is the single attachment a reply may carry.
type OutboundAttachment struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// OutboundMessage is the message body of a provider send call. Only one
// of Text/Attachment typically carries content; QuickReplies is capped
// to MaxQuickReplies by Format before Send is ever called.
type OutboundMessage struct {
	Text         string               `json:"text,omitempty"`
	QuickReplies []QuickReply         `json:"quick_replies,omitempty"`
	Attachment   *OutboundAttachment  `json:"attachment,omitempty"`
}

// QuickReply is one provider-side quick-reply button.
type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

// SendRequest is the full body of POST .../messages.
type SendRequest struct {
	Recipient      Recipient       `json:"recipient"`
	Message        OutboundMessage `json:"message"`
	MessagingType  string          `json:"messaging_type"`
}

// SendResponse is the provider's acknowledgement of a delivered message.
type SendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// Format builds an OutboundMessage from free-form text and choices,
// capping quick replies and attaching at most one attachment per spec
// §4.6 stage "format reply".
func Format(text string, choices []string, attachment *OutboundAttachment) OutboundMessage {
	msg := OutboundMessage{Text: text, Attachment: attachment}
	if len(choices) > 0 {
		n := len(choices)
		if n > MaxQuickReplies {
			n = MaxQuickReplies
		}
		msg.QuickReplies = make([]QuickReply, n)
		for i := 0; i < n; i++ {
			msg.QuickReplies[i] = QuickReply{
				ContentType: "text",
				Title:       choices[i],
				Payload:     choices[i],
			}
		}
	}
	return msg
}

// Send posts msg to recipientID through scopeID's profile-specific
// endpoint (the page or account the reply is sent from), authenticated
// with accessToken as a query parameter per the provider's convention.
// One HTTP round trip; callers wrap this in the retry core.
func (c *Client) Send(ctx context.Context, profile *config.PlatformProfile, scopeID, accessToken, recipientID string, msg OutboundMessage) (int, *SendResponse, error) {
	body := SendRequest{
		Recipient:     Recipient{ID: recipientID},
		Message:       msg,
		MessagingType: "RESPONSE",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal send request: %w", err)
	}

	endpoint := profile.SendEndpoint(scopeID)
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, nil, fmt.Errorf("parse send endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read send response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, fmt.Errorf("send call returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out SendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decode send response: %w", err)
	}

	return resp.StatusCode, &out, nil
}
