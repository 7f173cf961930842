package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/CRT-AUTO/bridge-core/pkg/aiclient"
	"github.com/CRT-AUTO/bridge-core/pkg/providerclient"
	"github.com/CRT-AUTO/bridge-core/pkg/retry"
	"github.com/CRT-AUTO/bridge-core/pkg/store"
	"github.com/CRT-AUTO/bridge-core/pkg/webhook"
)

const lockTTL = 15 * time.Second

// processOne drives a single claimed event through every pipeline stage,
// recording a ProcessingTrace per stage and routing to completion,
// requeue, or the dead-letter sink.
func (w *Worker) processOne(ctx context.Context, evt store.QueuedEvent) outcome {
	log := w.logger().With("event_id", evt.ID, "tenant_id", evt.TenantID)

	lockKey := "conversation:" + evt.TenantID + ":" + string(evt.Platform) + ":" + evt.SenderID
	token, err := w.Locker.Lock(ctx, lockKey, lockTTL)
	if err != nil {
		log.Warn("failed to acquire conversation lock, requeuing", "error", err)
		return w.requeueOrFail(ctx, evt, "lock: "+err.Error())
	}
	defer w.Locker.Unlock(ctx, lockKey, token)

	// Stage 1: resolve connection.
	conn, err := w.Store.SocialConnectionByScope(ctx, evt.TenantID, evt.RecipientID)
	if err != nil {
		w.trace(ctx, evt.ID, "resolve_connection", err)
		return w.deadLetter(ctx, evt, fmt.Sprintf("resolve connection: %v", err))
	}
	accessToken, err := w.Encryptor.Decrypt(conn.AccessToken)
	if err != nil {
		w.trace(ctx, evt.ID, "resolve_connection", err)
		return w.deadLetter(ctx, evt, fmt.Sprintf("decrypt connection token: %v", err))
	}
	w.trace(ctx, evt.ID, "resolve_connection", nil)

	// Stage 2: acquire session.
	sessionTTL := w.SessionTTL
	session, err := w.Store.GetOrCreateSession(ctx, evt.TenantID, evt.SenderID, evt.Platform, sessionTTL)
	if err != nil {
		w.trace(ctx, evt.ID, "acquire_session", err)
		return w.requeueOrFail(ctx, evt, fmt.Sprintf("acquire session: %v", err))
	}
	w.trace(ctx, evt.ID, "acquire_session", nil)

	// Stage 3: upsert conversation.
	conv, err := w.Store.GetOrCreateConversation(ctx, evt.TenantID, evt.Platform, evt.SenderID, evt.SenderID, session.ID)
	if err != nil {
		w.trace(ctx, evt.ID, "upsert_conversation", err)
		return w.requeueOrFail(ctx, evt, fmt.Sprintf("upsert conversation: %v", err))
	}
	w.trace(ctx, evt.ID, "upsert_conversation", nil)

	// Stage 4: persist user message.
	wireForm := webhook.Platform(string(evt.Platform))
	normalized, err := webhook.Normalize(wireForm, evt.RawPayload)
	if err != nil {
		w.trace(ctx, evt.ID, "persist_user_message", err)
		return w.deadLetter(ctx, evt, fmt.Sprintf("normalize payload: %v", err))
	}
	externalID, _ := webhook.ExtractMessageID(wireForm, evt.RawPayload)
	userMsg := store.Message{ConversationID: conv.ID, Sender: store.SenderUser, Content: normalized.Text}
	if externalID != "" {
		userMsg.ExternalID = &externalID
	}
	if _, err := w.Store.AppendMessage(ctx, userMsg); err != nil {
		w.trace(ctx, evt.ID, "persist_user_message", err)
		return w.requeueOrFail(ctx, evt, fmt.Sprintf("persist user message: %v", err))
	}
	if err := w.Store.TouchConversation(ctx, conv.ID, time.Now().UTC()); err != nil {
		w.trace(ctx, evt.ID, "persist_user_message", err)
		return w.requeueOrFail(ctx, evt, fmt.Sprintf("touch conversation: %v", err))
	}
	w.trace(ctx, evt.ID, "persist_user_message", nil)

	// Stage 5: update session (history + extend expiry).
	if err := w.Store.MutateContext(ctx, w.Locker, session.ID, func(c map[string]any) error {
		return store.AppendHistory(c, store.HistoryTurn{Role: "user", Content: normalized.Text, TS: time.Now().UTC()})
	}); err != nil {
		w.trace(ctx, evt.ID, "update_session", err)
		return w.requeueOrFail(ctx, evt, fmt.Sprintf("update session: %v", err))
	}
	if err := w.Store.ExtendExpiry(ctx, session.ID, sessionTTL); err != nil {
		w.trace(ctx, evt.ID, "update_session", err)
		return w.requeueOrFail(ctx, evt, fmt.Sprintf("extend session expiry: %v", err))
	}
	w.trace(ctx, evt.ID, "update_session", nil)

	// Stage 6: resolve AI binding.
	binding, err := w.Store.AIProjectBindingForTenant(ctx, evt.TenantID)
	if err != nil {
		w.trace(ctx, evt.ID, "resolve_ai_binding", err)
		return w.deadLetter(ctx, evt, fmt.Sprintf("resolve AI binding: %v", err))
	}
	w.trace(ctx, evt.ID, "resolve_ai_binding", nil)

	// Stage 7: call AI runtime, with retry.
	reloaded, err := w.Store.SessionContext(ctx, session.ID)
	if err != nil {
		w.trace(ctx, evt.ID, "call_ai_runtime", err)
		return w.requeueOrFail(ctx, evt, fmt.Sprintf("read session variables: %v", err))
	}

	aiRunner := retry.NewRunner(retry.DefaultPolicy(), w.AIClassifier)
	var items []aiclient.ResponseItem
	_, runErr := aiRunner.Run(ctx, "call_ai_runtime", func(ctx context.Context) (int, error) {
		status, rItems, callErr := w.AI.Interact(ctx, evt.TenantID, binding.APIKey, normalized.Text, reloaded)
		if callErr == nil {
			items = rItems
		}
		return status, callErr
	})
	if runErr != nil {
		w.trace(ctx, evt.ID, "call_ai_runtime", runErr)
		return w.deadLetter(ctx, evt, fmt.Sprintf("AI runtime call exhausted retries: %v", runErr))
	}
	w.trace(ctx, evt.ID, "call_ai_runtime", nil)

	// Stage 8: extract context (set-variables records + inline markers).
	replyText, choices, setVars := extractReply(items)
	if len(setVars) > 0 {
		if err := w.Store.MutateContext(ctx, w.Locker, session.ID, func(c map[string]any) error {
			for k, v := range setVars {
				c[k] = v
			}
			return nil
		}); err != nil {
			w.trace(ctx, evt.ID, "extract_context", err)
			return w.requeueOrFail(ctx, evt, fmt.Sprintf("persist extracted variables: %v", err))
		}
	}
	w.trace(ctx, evt.ID, "extract_context", nil)

	// Stage 9: persist assistant message.
	if _, err := w.Store.AppendMessage(ctx, store.Message{ConversationID: conv.ID, Sender: store.SenderAssistant, Content: replyText}); err != nil {
		w.trace(ctx, evt.ID, "persist_assistant_message", err)
		return w.requeueOrFail(ctx, evt, fmt.Sprintf("persist assistant message: %v", err))
	}
	if err := w.Store.MutateContext(ctx, w.Locker, session.ID, func(c map[string]any) error {
		return store.AppendHistory(c, store.HistoryTurn{Role: "assistant", Content: replyText, TS: time.Now().UTC()})
	}); err != nil {
		w.trace(ctx, evt.ID, "persist_assistant_message", err)
		return w.requeueOrFail(ctx, evt, fmt.Sprintf("append assistant history: %v", err))
	}
	w.trace(ctx, evt.ID, "persist_assistant_message", nil)

	// Stage 10: format reply.
	outbound := providerclient.Format(replyText, choices, nil)
	w.trace(ctx, evt.ID, "format_reply", nil)

	// Stage 11: send to provider, with retry. Exhaustion is not fatal —
	// the assistant message already persisted, so the event still
	// completes with an "undelivered" warning rather than dead-lettering.
	profile := w.Profiles[string(evt.Platform)]
	undelivered := false
	if profile == nil {
		undelivered = true
		log.Warn("no platform profile configured, marking undelivered", "platform", evt.Platform)
	} else {
		sendRunner := retry.NewRunner(retry.DefaultPolicy(), w.SendClassifier)
		_, sendErr := sendRunner.Run(ctx, "send_to_provider", func(ctx context.Context) (int, error) {
			status, _, callErr := w.Send.Send(ctx, profile, conn.ScopeID(), accessToken, evt.SenderID, outbound)
			return status, callErr
		})
		if sendErr != nil {
			undelivered = true
			log.Warn("send to provider exhausted retries, message preserved as undelivered", "error", sendErr)
		}
	}
	w.trace(ctx, evt.ID, "send_to_provider", nil)

	// Stage 12: finalize.
	if err := w.Store.CompleteEvent(ctx, evt.ID); err != nil {
		log.Error("failed to mark event completed", "error", err)
		return outcomeRequeued
	}
	w.trace(ctx, evt.ID, "finalize", nil)

	if undelivered {
		log.Info("event completed with undelivered reply")
	}
	return outcomeCompleted
}

// requeueOrFail reverts evt to pending for another drain pass, unless its
// already-bumped retry_count has exhausted MaxRetries, in which case it is
// dead-lettered instead.
func (w *Worker) requeueOrFail(ctx context.Context, evt store.QueuedEvent, reason string) outcome {
	if evt.RetryCount >= store.MaxRetries {
		return w.deadLetter(ctx, evt, reason)
	}
	if err := w.Store.RequeueEvent(ctx, evt.ID); err != nil {
		w.logger().Error("failed to requeue event", "event_id", evt.ID, "error", err)
	}
	return outcomeRequeued
}

func (w *Worker) deadLetter(ctx context.Context, evt store.QueuedEvent, reason string) outcome {
	log := w.logger().With("event_id", evt.ID)

	if err := w.Store.FailEvent(ctx, evt.ID, reason); err != nil {
		log.Error("failed to mark event failed", "error", err)
	}

	dl := store.DeadLetter{
		TenantID:        evt.TenantID,
		OriginalPayload: evt.RawPayload,
		Error:           reason,
	}
	if err := w.Store.InsertDeadLetter(ctx, dl); err != nil {
		log.Error("failed to insert dead letter", "error", err)
		return outcomeDeadLettered
	}

	if w.Archiver != nil {
		if err := w.Archiver.Archive(ctx, dl); err != nil {
			log.Warn("dead letter archival failed, continuing without it", "error", err)
		}
	}

	return outcomeDeadLettered
}

func (w *Worker) trace(ctx context.Context, eventID, stage string, stageErr error) {
	t := store.ProcessingTrace{
		QueuedEventID: eventID,
		Stage:         stage,
		Status:        store.TraceCompleted,
	}
	if stageErr != nil {
		t.Status = store.TraceFailed
		msg := stageErr.Error()
		t.Error = &msg
	}
	if err := w.Store.AppendTrace(ctx, t); err != nil {
		w.logger().Error("failed to append processing trace", "event_id", eventID, "stage", stage, "error", err)
	}
}
