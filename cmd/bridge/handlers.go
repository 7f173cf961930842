package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CRT-AUTO/bridge-core/pkg/api"
	"github.com/CRT-AUTO/bridge-core/pkg/signature"
	"github.com/CRT-AUTO/bridge-core/pkg/store"
	"github.com/CRT-AUTO/bridge-core/pkg/webhook"
)

// maxWebhookBody bounds an inbound delivery's raw body, matching the
// provider's own payload size ceiling so a misbehaving sender can't exhaust
// memory before the signature check even runs.
const maxWebhookBody = 2 << 20 // 2 MiB

func platformAppSecret() []byte {
	return []byte(os.Getenv("PLATFORM_APP_SECRET"))
}

// handleWebhookChallenge answers the provider's subscription-verification
// handshake with the verbatim hub.challenge value.
func (a *app) handleWebhookChallenge(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	platform := r.PathValue("platform")
	nonce := r.PathValue("nonce")

	cfg, err := a.store.WebhookConfigByNonce(r.Context(), tenantID, store.Platform(platform))
	if err != nil {
		api.WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", "no active webhook registration for this tenant/platform")
		return
	}
	if !nonceMatches(cfg, nonce) {
		api.WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", "nonce does not match the registered endpoint")
		return
	}

	req := webhook.ChallengeRequest{
		Mode:        r.URL.Query().Get("hub.mode"),
		VerifyToken: r.URL.Query().Get("hub.verify_token"),
		Challenge:   r.URL.Query().Get("hub.challenge"),
	}
	active := webhook.ActiveWebhookConfig{VerificationToken: cfg.VerificationToken, IsActive: cfg.IsActive}

	challenge, err := webhook.RespondToChallenge(req, active)
	if err != nil {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(challenge))
}

func nonceMatches(cfg *store.WebhookConfig, nonce string) bool {
	if cfg.GeneratedURL == nil || *cfg.GeneratedURL == "" {
		return true
	}
	return strings.HasSuffix(*cfg.GeneratedURL, nonce)
}

// handleWebhookDelivery verifies, deduplicates, and enqueues an inbound
// event. Per spec this endpoint always returns 200 once the signature and
// payload are well-formed, even if an error is reported back, so the
// provider never retries a delivery the bridge has already recorded.
func (a *app) handleWebhookDelivery(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	platformParam := r.PathValue("platform")
	nonce := r.PathValue("nonce")

	cfg, err := a.store.WebhookConfigByNonce(r.Context(), tenantID, store.Platform(platformParam))
	if err != nil {
		api.WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", "no active webhook registration for this tenant/platform")
		return
	}
	if !nonceMatches(cfg, nonce) {
		api.WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", "nonce does not match the registered endpoint")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "failed to read request body")
		return
	}
	if len(body) > maxWebhookBody {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "payload too large")
		return
	}

	sigErr := verifySignature(r, body)
	if sigErr != nil {
		api.WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", "INVALID_SIGNATURE")
		return
	}

	wirePlatform := webhook.Platform(platformParam)
	senderID, recipientID, err := webhook.ExtractSender(wirePlatform, body)
	if err != nil {
		if err == webhook.ErrEcho {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queued": false, "processed": false})
			return
		}
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "MALFORMED_PAYLOAD")
		return
	}

	fingerprint, err := webhook.Fingerprint(body)
	if err != nil {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "MALFORMED_PAYLOAD")
		return
	}

	evt := store.QueuedEvent{
		TenantID:    tenantID,
		Platform:    store.Platform(platformParam),
		SenderID:    senderID,
		RecipientID: recipientID,
		RawPayload:  body,
		Fingerprint: fingerprint,
		EventTS:     time.Now().UTC(),
	}

	_, duplicate, err := a.store.Enqueue(r.Context(), evt)
	if err != nil {
		a.logger.Error("failed to enqueue webhook event", "error", err, "tenant_id", tenantID)
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "queued": false, "processed": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queued": !duplicate, "processed": false})
}

func verifySignature(r *http.Request, body []byte) error {
	headers := signature.Headers{
		SHA256: r.Header.Get("X-Hub-Signature-256"),
		SHA1:   r.Header.Get("X-Hub-Signature"),
	}
	return signature.Verify(headers, body, platformAppSecret())
}

// handleDataDeletion implements the provider's data-deletion callback: a
// form-encoded signed_request whose HMAC-SHA256 signature MUST be verified
// against the app secret before any user data is touched.
func (a *app) handleDataDeletion(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "malformed form body")
		return
	}
	signedRequest := r.FormValue("signed_request")
	if signedRequest == "" {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "missing signed_request")
		return
	}

	payload, err := verifySignedRequest(signedRequest, platformAppSecret())
	if err != nil {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var claims struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.UserID == "" {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "signed_request payload missing user_id")
		return
	}

	if _, err := a.store.DeleteParticipantData(r.Context(), claims.UserID); err != nil {
		a.logger.Error("failed to process data deletion", "error", err, "user_id", claims.UserID)
		api.WriteErrorR(w, r, http.StatusInternalServerError, "Internal Server Error", "failed to process deletion request")
		return
	}

	code := confirmationCode()
	writeJSON(w, http.StatusOK, map[string]any{
		"url":               fmt.Sprintf("https://bridge-core.internal/api/data-deletion/status/%s", code),
		"status_url":        fmt.Sprintf("https://bridge-core.internal/api/data-deletion/status/%s", code),
		"confirmation_code": code,
	})
}

// verifySignedRequest splits a `sig.payload` token, verifies sig as the
// base64url-encoded HMAC-SHA256 of the payload segment under appSecret, and
// returns the base64url-decoded payload bytes.
func verifySignedRequest(signedRequest string, appSecret []byte) ([]byte, error) {
	sigPart, payloadPart, ok := strings.Cut(signedRequest, ".")
	if !ok || sigPart == "" || payloadPart == "" {
		return nil, fmt.Errorf("malformed signed_request")
	}

	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, fmt.Errorf("malformed signature encoding")
	}

	mac := hmac.New(sha256.New, appSecret)
	mac.Write([]byte(payloadPart))
	expected := mac.Sum(nil)
	if !hmac.Equal(sig, expected) {
		return nil, fmt.Errorf("INVALID_SIGNATURE")
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, fmt.Errorf("malformed payload encoding")
	}
	return payload, nil
}

// confirmationCode builds the `DEL` + 8 uppercase base36 chars opaque token
// the data-deletion response returns to the provider.
func confirmationCode() string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	id := uuid.New()
	var b strings.Builder
	b.WriteString("DEL")
	for i := 0; i < 8; i++ {
		b.WriteByte(alphabet[int(id[i])%len(alphabet)])
	}
	return b.String()
}

// handleDrain triggers one worker drain pass on demand.
func (a *app) handleDrain(w http.ResponseWriter, r *http.Request) {
	batchSize := 5
	if raw := r.URL.Query().Get("batchSize"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			batchSize = n
		}
	}

	result, err := a.worker.Drain(r.Context(), batchSize)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"processed": result.Completed + result.Requeued + result.DeadLetter,
		"results": map[string]any{
			"claimed":     result.Claimed,
			"completed":   result.Completed,
			"requeued":    result.Requeued,
			"dead_letter": result.DeadLetter,
		},
	})
}

// handleSessionCleanup sweeps sessions past their expiry.
func (a *app) handleSessionCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.SweepExpired(r.Context())
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleaned": n})
}

// handleRefreshConnection triggers an on-demand token refresh for one
// SocialConnection (C12).
func (a *app) handleRefreshConnection(w http.ResponseWriter, r *http.Request) {
	connectionID := r.PathValue("connection_id")
	if connectionID == "" {
		api.WriteBadRequest(w, "missing connection_id")
		return
	}

	result, err := a.refresher.RefreshConnection(r.Context(), connectionID)
	if err != nil {
		api.WriteNotFound(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
