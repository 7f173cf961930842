// Package worker implements the twelve-stage pipeline that turns a queued
// inbound event into a delivered (or dead-lettered) reply.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CRT-AUTO/bridge-core/pkg/aiclient"
	"github.com/CRT-AUTO/bridge-core/pkg/config"
	"github.com/CRT-AUTO/bridge-core/pkg/credentials"
	"github.com/CRT-AUTO/bridge-core/pkg/observability"
	"github.com/CRT-AUTO/bridge-core/pkg/providerclient"
	"github.com/CRT-AUTO/bridge-core/pkg/retry"
	"github.com/CRT-AUTO/bridge-core/pkg/store"
)

// Archiver mirrors pkg/archive.Sink without importing it, so worker never
// depends on a specific backend — nil disables archiving entirely.
type Archiver interface {
	Archive(ctx context.Context, dl store.DeadLetter) error
}

// Worker drains the queued_events table and runs each claimed event
// through Resolve → Acquire → Upsert → Persist → Update → Bind → Interact
// → Extract → Persist → Format → Send → Finalize.
type Worker struct {
	Store     *store.Store
	Locker    store.Locker
	AI        *aiclient.Client
	Send      *providerclient.Client
	Encryptor *credentials.Encryptor
	Profiles  map[string]*config.PlatformProfile
	Archiver  Archiver
	Obs       *observability.Provider

	StaleClaimTimeout time.Duration
	SessionTTL        time.Duration
	AIClassifier      retry.Classifier
	SendClassifier    retry.Classifier

	Logger *slog.Logger
}

// DrainResult summarizes one Drain pass.
type DrainResult struct {
	Claimed    int
	Completed  int
	Requeued   int
	DeadLetter int
}

// Drain reaps stale claims, claims up to batchSize pending events, and
// processes each one in turn. Events are processed sequentially within a
// single Drain call; concurrency comes from running multiple drain loops,
// each serialized per-conversation via Locker.
func (w *Worker) Drain(ctx context.Context, batchSize int) (DrainResult, error) {
	var result DrainResult

	staleAfter := w.StaleClaimTimeout
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}
	if _, err := w.Store.ReapStaleClaims(ctx, staleAfter); err != nil {
		return result, fmt.Errorf("reap stale claims: %w", err)
	}

	events, err := w.Store.Claim(ctx, batchSize)
	if err != nil {
		return result, fmt.Errorf("claim events: %w", err)
	}
	result.Claimed = len(events)

	for _, evt := range events {
		outcome := w.processOne(ctx, evt)
		switch outcome {
		case outcomeCompleted:
			result.Completed++
		case outcomeRequeued:
			result.Requeued++
		case outcomeDeadLettered:
			result.DeadLetter++
		}
	}

	return result, nil
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeRequeued
	outcomeDeadLettered
)

func (w *Worker) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
