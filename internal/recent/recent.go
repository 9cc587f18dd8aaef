// Package recent keeps the list of recently opened plots in a small SQLite
// database next to config.json.
package recent

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"debrief/internal/logging"
	"debrief/internal/paths"
)

// DefaultMaxEntries is used when New is given a non-positive limit.
const DefaultMaxEntries = 10

// Plot is one history entry.
type Plot struct {
	PlotID     string    `json:"plotId"`
	Title      string    `json:"title"`
	StoreID    string    `json:"storeId"`
	URI        string    `json:"uri"`
	LastOpened time.Time `json:"lastOpened"`
}

// History is the recent plots database.
type History struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
	max    int
	now    func() time.Time
}

// Option configures a History.
type Option func(*History)

// WithClock replaces the clock used to stamp LastOpened.
func WithClock(now func() time.Time) Option {
	return func(h *History) { h.now = now }
}

// New opens (creating if needed) the database at path, keeping at most max
// entries.
func New(path string, max int, opts ...Option) (*History, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers inside the process.
	db.SetMaxOpenConns(1)

	if max <= 0 {
		max = DefaultMaxEntries
	}
	h := &History{db: db, dbPath: path, max: max, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}

	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

// Open opens the history in the platform config directory.
func Open(max int, opts ...Option) (*History, error) {
	path, err := paths.RecentDB()
	if err != nil {
		return nil, err
	}
	return New(path, max, opts...)
}

func (h *History) initialize() error {
	schema := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS recent_plots (
		plot_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		store_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		last_opened INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recent_last_opened ON recent_plots(last_opened);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

// Path returns the database file.
func (h *History) Path() string {
	return h.dbPath
}

// Add moves the plot to the front of the history, inserting it if new, and
// drops the oldest entries beyond the limit.
func (h *History) Add(ctx context.Context, p Plot) (Plot, error) {
	if p.PlotID == "" {
		return Plot{}, fmt.Errorf("plot id is required")
	}
	p.LastOpened = h.now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return Plot{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recent_plots (plot_id, title, store_id, uri, last_opened)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(plot_id) DO UPDATE SET
			title = excluded.title,
			store_id = excluded.store_id,
			uri = excluded.uri,
			last_opened = excluded.last_opened`,
		p.PlotID, p.Title, p.StoreID, p.URI, p.LastOpened.UnixNano())
	if err != nil {
		return Plot{}, fmt.Errorf("failed to record plot: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM recent_plots WHERE plot_id NOT IN (
			SELECT plot_id FROM recent_plots ORDER BY last_opened DESC, rowid DESC LIMIT ?
		)`, h.max)
	if err != nil {
		return Plot{}, fmt.Errorf("failed to trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Plot{}, fmt.Errorf("failed to commit: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.StoreDebug("Trimmed %d old plot(s) from history", n)
	}
	logging.StoreDebug("Recorded recent plot %s", p.PlotID)
	return p, nil
}

// Remove drops the plot from the history. Unknown ids are ignored.
func (h *History) Remove(ctx context.Context, plotID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.db.ExecContext(ctx, `DELETE FROM recent_plots WHERE plot_id = ?`, plotID); err != nil {
		return fmt.Errorf("failed to remove plot: %w", err)
	}
	return nil
}

// Clear empties the history.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.db.ExecContext(ctx, `DELETE FROM recent_plots`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	logging.Store("Cleared recent plots")
	return nil
}

// List returns the history, most recently opened first.
func (h *History) List(ctx context.Context) ([]Plot, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT plot_id, title, store_id, uri, last_opened
		FROM recent_plots ORDER BY last_opened DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	out := []Plot{}
	for rows.Next() {
		var p Plot
		var opened int64
		if err := rows.Scan(&p.PlotID, &p.Title, &p.StoreID, &p.URI, &opened); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		p.LastOpened = time.Unix(0, opened).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// RelativeTime describes t relative to now: "just now", "5 minutes ago",
// "yesterday", and so on, falling back to the date after a week.
func RelativeTime(now, t time.Time) string {
	diff := now.Sub(t)
	minutes := int(diff / time.Minute)
	hours := int(diff / time.Hour)
	days := int(diff / (24 * time.Hour))

	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s ago", n, unit)
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return plural(minutes, "minute")
	case hours < 24:
		return plural(hours, "hour")
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Local().Format("2006-01-02")
	}
}
