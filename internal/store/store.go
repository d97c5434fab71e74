// Package store provides the durable event queue backed by SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/ownspend/agent/pkg/api"
)

//go:embed 001_create_pending_events.sql
var migrationSQL string

// Store persists captured events. It is safe for concurrent use: reads run
// concurrently, row mutations are single SQL statements, and the
// PENDING/FAILED -> SYNCING claim is a conditional UPDATE so two sync passes
// can never process the same row.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.Mutex
	watchers map[int]chan struct{}
	nextID   int
}

// Open opens (or creates) the event database at path and runs migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer; serialize access through one
	// connection so concurrent mutations queue instead of failing
	// with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:       db,
		logger:   logger,
		watchers: make(map[int]chan struct{}),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("event store opened", "path", path)
	return s, nil
}

func (s *Store) initialize() error {
	pragmas := `
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA busy_timeout=5000;
	`
	if _, err := s.db.Exec(pragmas); err != nil {
		return fmt.Errorf("applying pragmas: %w", err)
	}

	if _, err := s.db.Exec(migrationSQL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Insert persists a new event with status PENDING and returns the assigned id.
func (s *Store) Insert(ctx context.Context, event *api.CapturedEvent) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_events (source_type, source_sender, source_package, raw_text, received_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		string(event.SourceType),
		event.SourceSender,
		nullString(event.SourcePackage),
		event.RawText,
		event.ReceivedAt,
		string(api.StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}

	event.ID = id
	event.SyncStatus = api.StatusPending
	s.notify()
	return id, nil
}

// ListPendingOrFailed returns all PENDING or FAILED events, oldest first.
func (s *Store) ListPendingOrFailed(ctx context.Context) ([]*api.CapturedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_type, source_sender, source_package, raw_text, received_at,
		       sync_status, retry_count, error_message, synced_at
		FROM pending_events
		WHERE sync_status IN ('PENDING', 'FAILED')
		ORDER BY received_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying pending events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListAll returns every stored event, newest first (dashboard view).
func (s *Store) ListAll(ctx context.Context) ([]*api.CapturedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_type, source_sender, source_package, raw_text, received_at,
		       sync_status, retry_count, error_message, synced_at
		FROM pending_events
		ORDER BY received_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// MarkSyncing claims a row for syncing. The conditional UPDATE is the
// cross-pass mutual-exclusion point: only a PENDING or FAILED row can be
// claimed, and exactly one concurrent caller wins.
func (s *Store) MarkSyncing(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_events
		SET sync_status = 'SYNCING'
		WHERE id = ? AND sync_status IN ('PENDING', 'FAILED')
	`, id)
	if err != nil {
		return false, fmt.Errorf("marking event %d syncing: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	if n > 0 {
		s.notify()
	}
	return n > 0, nil
}

// MarkSynced transitions a row to SYNCED and sets its synced_at timestamp.
func (s *Store) MarkSynced(ctx context.Context, id int64, syncedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_events
		SET sync_status = 'SYNCED', synced_at = ?, error_message = NULL
		WHERE id = ?
	`, syncedAt, id)
	if err != nil {
		return fmt.Errorf("marking event %d synced: %w", id, err)
	}
	s.notify()
	return nil
}

// MarkFailed transitions a row to FAILED, increments its retry count and
// overwrites its error message in one statement.
func (s *Store) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_events
		SET sync_status = 'FAILED', retry_count = retry_count + 1, error_message = ?
		WHERE id = ?
	`, errorMessage, id)
	if err != nil {
		return fmt.Errorf("marking event %d failed: %w", id, err)
	}
	s.notify()
	return nil
}

// DeleteSyncedOlderThan removes SYNCED rows whose synced_at is before cutoff
// (epoch milliseconds). Running it twice with the same cutoff is a no-op the
// second time.
func (s *Store) DeleteSyncedOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_events
		WHERE sync_status = 'SYNCED' AND synced_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old synced events: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	if n > 0 {
		s.notify()
	}
	return n, nil
}

// PendingCount returns the number of PENDING events.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	return s.countByStatus(ctx, api.StatusPending)
}

// SyncedCount returns the number of SYNCED events.
func (s *Store) SyncedCount(ctx context.Context) (int, error) {
	return s.countByStatus(ctx, api.StatusSynced)
}

func (s *Store) countByStatus(ctx context.Context, status api.SyncStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_events WHERE sync_status = ?`, string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s events: %w", status, err)
	}
	return n, nil
}

// Subscribe registers a watcher that is signaled after every mutation.
// Callers re-query counts or lists on each signal; signals are coalesced
// when the watcher is slow. The returned cancel func releases the watcher.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
	return ch, cancel
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	s.logger.Info("event store closed")
	return nil
}

func scanEvents(rows *sql.Rows) ([]*api.CapturedEvent, error) {
	var events []*api.CapturedEvent
	for rows.Next() {
		var (
			e        api.CapturedEvent
			srcType  string
			status   string
			pkg      sql.NullString
			errMsg   sql.NullString
			syncedAt sql.NullInt64
		)
		err := rows.Scan(&e.ID, &srcType, &e.SourceSender, &pkg, &e.RawText,
			&e.ReceivedAt, &status, &e.RetryCount, &errMsg, &syncedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}

		e.SourceType = api.SourceType(srcType)
		e.SyncStatus = api.SyncStatus(status)
		e.SourcePackage = pkg.String
		e.ErrorMessage = errMsg.String
		e.SyncedAt = syncedAt.Int64
		events = append(events, &e)
	}
	return events, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
