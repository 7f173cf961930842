// Package aiclient calls the per-tenant conversational-AI runtime that
// produces replies for inbound messages.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout is the per-call budget for the interact endpoint (spec
// §6: AI-runtime API, 15s).
const DefaultTimeout = 15 * time.Second

// Client calls the AI runtime's interact endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client against baseURL (e.g. https://runtime.example.com).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Action is the inbound text turn sent to the runtime.
type Action struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// RuntimeConfig toggles runtime-side text post-processing.
type RuntimeConfig struct {
	TTS        bool `json:"tts"`
	StripSSML  bool `json:"stripSSML"`
}

// State carries the flattened session context forward on every turn.
type State struct {
	Variables map[string]any `json:"variables"`
}

// InteractRequest is the body of POST .../interact.
type InteractRequest struct {
	Action Action        `json:"action"`
	Config RuntimeConfig `json:"config"`
	State  State         `json:"state"`
}

// ResponseItem is one record of the runtime's response array. Type
// discriminates which of Text/Choice/Visual/SetVariables is populated —
// unknown types are preserved in Raw so the worker can still log them.
type ResponseItem struct {
	Type         string         `json:"type"`
	Text         string         `json:"text,omitempty"`
	Choices      []string       `json:"choices,omitempty"`
	VisualURL    string         `json:"visualUrl,omitempty"`
	SetVariables map[string]any `json:"setVariables,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the whole record in Raw.
func (r *ResponseItem) UnmarshalJSON(data []byte) error {
	type plain ResponseItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ResponseItem(p)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

const (
	ItemText         = "text"
	ItemChoice       = "choice"
	ItemVisual       = "visual"
	ItemSetVariables = "set-variables"
)

// Interact posts the normalized text and session variables for tenantID
// and returns the runtime's response records. The caller is responsible
// for wrapping this in the retry core — Interact itself makes exactly one
// HTTP round trip.
func (c *Client) Interact(ctx context.Context, tenantID, apiKey, text string, variables map[string]any) (int, []ResponseItem, error) {
	reqBody := InteractRequest{
		Action: Action{Type: "text", Payload: text},
		Config: RuntimeConfig{TTS: false, StripSSML: true},
		State:  State{Variables: variables},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal interact request: %w", err)
	}

	url := fmt.Sprintf("%s/state/user/%s/interact", c.baseURL, tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build interact request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("interact call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read interact response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, fmt.Errorf("interact call returned %d: %s", resp.StatusCode, string(body))
	}

	var items []ResponseItem
	if err := json.Unmarshal(body, &items); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decode interact response: %w", err)
	}

	return resp.StatusCode, items, nil
}
