package webhook_test

import (
	"errors"
	"testing"

	"github.com/CRT-AUTO/bridge-core/pkg/webhook"
)

func TestRespondToChallenge_Matches(t *testing.T) {
	req := webhook.ChallengeRequest{Mode: "subscribe", VerifyToken: "tkA", Challenge: "C123"}
	cfg := webhook.ActiveWebhookConfig{VerificationToken: "tkA", IsActive: true}

	body, err := webhook.RespondToChallenge(req, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "C123" {
		t.Errorf("expected challenge echoed verbatim, got %q", body)
	}
}

func TestRespondToChallenge_WrongMode(t *testing.T) {
	req := webhook.ChallengeRequest{Mode: "unsubscribe", VerifyToken: "tkA", Challenge: "C123"}
	cfg := webhook.ActiveWebhookConfig{VerificationToken: "tkA", IsActive: true}

	_, err := webhook.RespondToChallenge(req, cfg)
	if !errors.Is(err, webhook.ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestRespondToChallenge_TokenMismatch(t *testing.T) {
	req := webhook.ChallengeRequest{Mode: "subscribe", VerifyToken: "wrong", Challenge: "C123"}
	cfg := webhook.ActiveWebhookConfig{VerificationToken: "tkA", IsActive: true}

	_, err := webhook.RespondToChallenge(req, cfg)
	if !errors.Is(err, webhook.ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestRespondToChallenge_InactiveConfig(t *testing.T) {
	req := webhook.ChallengeRequest{Mode: "subscribe", VerifyToken: "tkA", Challenge: "C123"}
	cfg := webhook.ActiveWebhookConfig{VerificationToken: "tkA", IsActive: false}

	_, err := webhook.RespondToChallenge(req, cfg)
	if !errors.Is(err, webhook.ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch for inactive config, got %v", err)
	}
}
