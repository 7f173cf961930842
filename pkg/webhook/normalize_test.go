package webhook_test

import (
	"errors"
	"testing"

	"github.com/CRT-AUTO/bridge-core/pkg/webhook"
)

func TestNormalize_PageHappyPath(t *testing.T) {
	raw := []byte(`{"object":"page","entry":[{"messaging":[{"sender":{"id":"P1"},"recipient":{"id":"R1"},"timestamp":1700000000000,"message":{"mid":"m1","text":"hello"}}]}]}`)

	msg, err := webhook.Normalize(webhook.PlatformPage, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Text != "hello" {
		t.Errorf("expected text 'hello', got %q", msg.Text)
	}
	if msg.Type != webhook.TypeText {
		t.Errorf("expected type text, got %q", msg.Type)
	}
}

func TestNormalize_PageEchoSuppressed(t *testing.T) {
	raw := []byte(`{"object":"page","entry":[{"messaging":[{"sender":{"id":"P1"},"recipient":{"id":"R1"},"timestamp":1,"message":{"mid":"m1","text":"hello","is_echo":true}}]}]}`)

	_, err := webhook.Normalize(webhook.PlatformPage, raw)
	if !errors.Is(err, webhook.ErrEcho) {
		t.Fatalf("expected ErrEcho, got %v", err)
	}
}

func TestNormalize_PagePostback(t *testing.T) {
	raw := []byte(`{"object":"page","entry":[{"messaging":[{"sender":{"id":"P1"},"recipient":{"id":"R1"},"timestamp":1,"postback":{"payload":"GET_STARTED","title":"Get Started"}}]}]}`)

	msg, err := webhook.Normalize(webhook.PlatformPage, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Text != "GET_STARTED" || msg.Type != webhook.TypePostback {
		t.Errorf("unexpected normalized message: %+v", msg)
	}
}

func TestNormalize_PageAttachmentFallsBackToDescription(t *testing.T) {
	raw := []byte(`{"object":"page","entry":[{"messaging":[{"sender":{"id":"P1"},"recipient":{"id":"R1"},"timestamp":1,"message":{"mid":"m1","attachments":[{"type":"image","payload":{"url":"https://example.com/a.jpg"}}]}}]}]}`)

	msg, err := webhook.Normalize(webhook.PlatformPage, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Text != "[Image: https://example.com/a.jpg]" {
		t.Errorf("expected attachment description as text, got %q", msg.Text)
	}
}

func TestNormalize_PageMalformedPayload(t *testing.T) {
	_, err := webhook.Normalize(webhook.PlatformPage, []byte(`not json`))
	if !errors.Is(err, webhook.ErrUnrecognizedPayload) {
		t.Fatalf("expected ErrUnrecognizedPayload, got %v", err)
	}
}

func TestNormalize_PhotoHappyPath(t *testing.T) {
	raw := []byte(`{"object":"instagram","entry":[{"changes":[{"field":"messages","value":{"sender":{"id":"P1"},"recipient":{"id":"R1"},"messages":[{"id":"m1","text":{"body":"hi there"}}]}}]}]}`)

	msg, err := webhook.Normalize(webhook.PlatformPhoto, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Text != "hi there" {
		t.Errorf("expected text 'hi there', got %q", msg.Text)
	}
}

func TestNormalize_PhotoIgnoresNonMessagesChange(t *testing.T) {
	raw := []byte(`{"object":"instagram","entry":[{"changes":[{"field":"comments","value":{}}]}]}`)

	_, err := webhook.Normalize(webhook.PlatformPhoto, raw)
	if !errors.Is(err, webhook.ErrUnrecognizedPayload) {
		t.Fatalf("expected ErrUnrecognizedPayload, got %v", err)
	}
}

func TestNormalize_IdempotentOnSamePayload(t *testing.T) {
	raw := []byte(`{"object":"page","entry":[{"messaging":[{"sender":{"id":"P1"},"recipient":{"id":"R1"},"timestamp":1,"message":{"mid":"m1","text":"hello"}}]}]}`)

	msg1, err := webhook.Normalize(webhook.PlatformPage, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg2, err := webhook.Normalize(webhook.PlatformPage, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg1.Text != msg2.Text || msg1.Type != msg2.Type {
		t.Errorf("expected identical normalization, got %+v vs %+v", msg1, msg2)
	}
}

func TestExtractSender_Page(t *testing.T) {
	raw := []byte(`{"object":"page","entry":[{"messaging":[{"sender":{"id":"P1"},"recipient":{"id":"R1"},"timestamp":1,"message":{"mid":"m1","text":"hi"}}]}]}`)

	sender, recipient, err := webhook.ExtractSender(webhook.PlatformPage, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender != "P1" || recipient != "R1" {
		t.Errorf("expected P1/R1, got %s/%s", sender, recipient)
	}
}
