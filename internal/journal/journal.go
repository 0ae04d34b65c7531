package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// schema creates the events table on first open. Events are stored as
// raw JSON so schema changes on the cloud side never break the journal.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	panel_mac TEXT NOT NULL,
	event TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_events_panel_created
	ON events (panel_mac, created_at DESC);
`

// Entry represents a single recorded panel event.
//
// Each entry stores the full event payload as received from the cloud,
// providing a local audit trail even when the cloud is unreachable.
type Entry struct {
	// ID is the auto-incremented primary key for the event row.
	ID int64 `json:"id"`

	// PanelMAC is the normalised MAC address of the originating panel.
	PanelMAC string `json:"panel_mac"`

	// Event is the decoded event payload.
	Event map[string]any `json:"event"`

	// CreatedAt is the timestamp the event was recorded (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Journal stores panel events in SQLite.
//
// All methods are safe for concurrent use; the underlying connection
// pool serialises writes.
type Journal struct {
	db *sql.DB
}

// New creates a journal backed by the given database connection and
// initialises the schema.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *Journal: Journal instance ready for use
//   - error: If schema initialisation fails
func New(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initialising journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// RecordEvent inserts a new event entry for a panel.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - panelMAC: Normalised panel MAC address
//   - event: Decoded event payload to persist
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (j *Journal) RecordEvent(ctx context.Context, panelMAC string, event map[string]any) error {
	if panelMAC == "" {
		return fmt.Errorf("panel mac is required")
	}
	if event == nil {
		event = map[string]any{}
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		"INSERT INTO events (panel_mac, event) VALUES (?, ?)",
		panelMAC,
		string(eventJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// RecentEvents returns recent events for a panel, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - panelMAC: Normalised panel MAC address
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: Event entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (j *Journal) RecentEvents(ctx context.Context, panelMAC string, limit int) ([]Entry, error) {
	if panelMAC == "" {
		return nil, fmt.Errorf("panel mac is required")
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, panel_mac, event, created_at
		 FROM events
		 WHERE panel_mac = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		panelMAC,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var eventJSON string
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.PanelMAC, &eventJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		if err := json.Unmarshal([]byte(eventJSON), &entry.Event); err != nil {
			return nil, fmt.Errorf("unmarshalling event: %w", err)
		}

		timestamp, err := parseEventTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return entries, nil
}

// PruneEvents deletes events older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (j *Journal) PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := j.db.ExecContext(ctx,
		"DELETE FROM events WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseEventTimestamp parses a timestamp stored in SQLite.
func parseEventTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02 15:04:05", value)
	if fallbackErr == nil {
		return fallback.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
