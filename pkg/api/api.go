// Package api defines the core data types shared across the capture agent.
package api

import (
	"context"
	"errors"
	"time"
)

// SourceType identifies the origin of a captured event.
type SourceType string

const (
	// SourceSMS marks events captured from bank SMS messages.
	SourceSMS SourceType = "SMS"
	// SourceNotification marks events captured from payment-app notifications.
	SourceNotification SourceType = "NOTIFICATION"
)

// SyncStatus is the sync lifecycle state of a captured event.
//
// Valid transitions: PENDING -> SYNCING -> {SYNCED | FAILED},
// FAILED -> SYNCING -> {SYNCED | FAILED}. SYNCED is terminal until the
// row is removed by retention cleanup.
type SyncStatus string

const (
	StatusPending SyncStatus = "PENDING"
	StatusSyncing SyncStatus = "SYNCING"
	StatusSynced  SyncStatus = "SYNCED"
	StatusFailed  SyncStatus = "FAILED"
)

// CapturedEvent is one detected SMS or notification queued for transmission
// to the remote service.
//
// SourceType, SourceSender, SourcePackage, RawText and ReceivedAt are set at
// creation and never mutated. Status fields are mutated exclusively through
// the event store.
type CapturedEvent struct {
	ID           int64      `json:"id"`
	SourceType   SourceType `json:"source_type"`
	SourceSender string     `json:"source_sender"`
	// SourcePackage is the originating application identifier.
	// Set for notifications only; empty for SMS.
	SourcePackage string `json:"source_package,omitempty"`
	RawText       string `json:"raw_text"`
	// ReceivedAt is the device-local capture time in epoch milliseconds.
	ReceivedAt int64      `json:"received_at"`
	SyncStatus SyncStatus `json:"sync_status"`
	RetryCount int        `json:"retry_count"`
	// ErrorMessage holds the last failure detail, overwritten on each failure.
	ErrorMessage string `json:"error_message,omitempty"`
	// SyncedAt is the epoch-millisecond time of successful sync, zero until then.
	SyncedAt int64 `json:"synced_at,omitempty"`
}

// ReceivedTime returns ReceivedAt as a time.Time.
func (e *CapturedEvent) ReceivedTime() time.Time {
	return time.UnixMilli(e.ReceivedAt)
}

// EventStore is the durable work queue shared by the capture pipeline,
// the sync engine and UI reads.
type EventStore interface {
	// Insert persists a new event with status PENDING and returns its id.
	Insert(ctx context.Context, event *CapturedEvent) (int64, error)

	// ListPendingOrFailed returns all PENDING or FAILED events ordered by
	// ReceivedAt ascending. Older events are always attempted before newer
	// ones within a pass.
	ListPendingOrFailed(ctx context.Context) ([]*CapturedEvent, error)

	// MarkSyncing claims a row for syncing. It reports false when the row
	// no longer exists or is not in a claimable state (already SYNCING in a
	// concurrent pass, or SYNCED). The claim is atomic: a row claimed by
	// one pass is never re-claimed by another.
	MarkSyncing(ctx context.Context, id int64) (bool, error)

	// MarkSynced transitions a row to SYNCED and records syncedAt.
	MarkSynced(ctx context.Context, id int64, syncedAt int64) error

	// MarkFailed transitions a row to FAILED, increments its retry count
	// and overwrites its error message.
	MarkFailed(ctx context.Context, id int64, errorMessage string) error

	// DeleteSyncedOlderThan removes SYNCED rows whose syncedAt is before
	// the cutoff (epoch milliseconds). Returns the number of rows removed.
	DeleteSyncedOlderThan(ctx context.Context, cutoff int64) (int64, error)
}

// PassOutcome is the result of one sync pass.
type PassOutcome int

const (
	// OutcomeNothingToDo means the queue was empty.
	OutcomeNothingToDo PassOutcome = iota
	// OutcomeSynced means the pass ran and at least one attempted event
	// succeeded, or nothing needed attempting after claims.
	OutcomeSynced
	// OutcomeRetry means every attempted event failed; the scheduler should
	// retry the whole pass under backoff.
	OutcomeRetry
)

// String returns a short name for logging.
func (o PassOutcome) String() string {
	switch o {
	case OutcomeNothingToDo:
		return "nothing-to-do"
	case OutcomeSynced:
		return "synced"
	case OutcomeRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// ErrNotConfigured is returned by a sync pass when the server URL or API key
// is missing. Backoff retry does not help here; the user has to configure
// the agent first.
var ErrNotConfigured = errors.New("sync not configured: server URL and API key required")
