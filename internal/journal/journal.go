package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/wire"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal: closed")

// Journal is a SQLite backed event log.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal at path. The database runs in WAL mode
// with a single connection.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, now: time.Now}, nil
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("journal: %q: %w", p, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("journal: user_version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("journal: schema version %d is newer than %d", version, schemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("journal: schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("journal: set user_version: %w", err)
	}
	return nil
}

// Close closes the database. It must not run concurrently with other
// methods. Closing twice returns ErrClosed.
func (j *Journal) Close() error {
	if j.db == nil {
		return ErrClosed
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Append records ev as dispatched from the named queue.
func (j *Journal) Append(ctx context.Context, queue string, ev event.Event) error {
	if j.db == nil {
		return ErrClosed
	}
	payload, err := wire.Pack(&ev, 0)
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events (queue, category, kind, tickstamp, label, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		queue,
		int64(ev.Category()),
		int64(ev.Kind),
		int64(ev.Tickstamp),
		ev.Label.String(),
		payload,
		j.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// Record is one journal row.
type Record struct {
	Seq      int64
	Queue    string
	Recorded time.Time
	Event    event.Event
}

// Filter selects records for Replay and Count. The zero value selects
// everything.
type Filter struct {
	Queue string
	// Categories restricts records to these categories when non-zero.
	Categories event.Category
	// After skips records with a sequence number up to and including it.
	After int64
	// Limit caps the number of records when positive.
	Limit int
}

func (f Filter) where() (string, []any) {
	clause := " WHERE seq > ?"
	args := []any{f.After}
	if f.Queue != "" {
		clause += " AND queue = ?"
		args = append(args, f.Queue)
	}
	if f.Categories != event.CategoryNone {
		clause += " AND (category & ?) != 0"
		args = append(args, int64(f.Categories))
	}
	return clause, args
}

// Replay calls fn for every selected record in append order. Replay stops
// at the first error from fn and returns it.
func (j *Journal) Replay(ctx context.Context, f Filter, fn func(Record) error) error {
	if j.db == nil {
		return ErrClosed
	}
	where, args := f.where()
	query := "SELECT seq, queue, recorded_at, payload FROM events" + where + " ORDER BY seq"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("journal: replay: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r       Record
			nanos   int64
			payload []byte
		)
		if err := rows.Scan(&r.Seq, &r.Queue, &nanos, &payload); err != nil {
			return fmt.Errorf("journal: replay: %w", err)
		}
		ev, _, err := wire.Unpack(payload)
		if err != nil {
			return fmt.Errorf("journal: replay seq %d: %w", r.Seq, err)
		}
		r.Event = ev
		r.Recorded = time.Unix(0, nanos)
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of selected records. Limit is ignored.
func (j *Journal) Count(ctx context.Context, f Filter) (int64, error) {
	if j.db == nil {
		return 0, ErrClosed
	}
	where, args := f.where()
	var n int64
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

// Truncate deletes records with a sequence number up to and including seq
// and returns how many were removed.
func (j *Journal) Truncate(ctx context.Context, seq int64) (int64, error) {
	if j.db == nil {
		return 0, ErrClosed
	}
	res, err := j.db.ExecContext(ctx, "DELETE FROM events WHERE seq <= ?", seq)
	if err != nil {
		return 0, fmt.Errorf("journal: truncate: %w", err)
	}
	return res.RowsAffected()
}
