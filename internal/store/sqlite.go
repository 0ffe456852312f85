package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/randomizedcoder/go-docker-machine/internal/task"
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS task_history (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT NOT NULL UNIQUE,
    machine     TEXT NOT NULL,
    name        TEXT NOT NULL,
    bin         TEXT NOT NULL,
    cmd         TEXT NOT NULL,
    args        TEXT NOT NULL,
    state       TEXT NOT NULL,
    exit_code   INTEGER NOT NULL,
    error       TEXT NOT NULL,
    started_ns  INTEGER NOT NULL,
    finished_ns INTEGER NOT NULL
)`

const createMachineIndex = `
CREATE INDEX IF NOT EXISTS task_history_machine ON task_history (machine, seq)`

const selectColumns = `id, machine, name, bin, cmd, args, state, exit_code, error, started_ns, finished_ns`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: a single writer, and ":memory:" is per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createHistoryTable, createMachineIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate task_history: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert appends a terminal task record.
func (s *SQLiteStore) Insert(ctx context.Context, rec task.Record) error {
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if rec.Args == nil {
		args = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_history (
			id, machine, name, bin, cmd, args, state, exit_code, error, started_ns, finished_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Machine, rec.Name, rec.Bin, rec.Cmd, string(args),
		rec.State.String(), rec.ExitCode, rec.Error,
		unixNano(rec.Started), unixNano(rec.Finished),
	)
	if err != nil {
		return fmt.Errorf("insert task record: %w", err)
	}
	return nil
}

// Get retrieves a record by task ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (task.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM task_history WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Record{}, ErrNotFound
	}
	if err != nil {
		return task.Record{}, fmt.Errorf("get task record: %w", err)
	}
	return rec, nil
}

// List returns the most recent limit records for machine, oldest first.
func (s *SQLiteStore) List(ctx context.Context, machine string, limit int) ([]task.Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM (
			SELECT * FROM task_history WHERE machine = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, machine, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list task records: %w", err)
	}
	defer rows.Close()

	var records []task.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task records: %w", err)
	}
	return records, nil
}

// CountByState returns the number of records per state for machine.
func (s *SQLiteStore) CountByState(ctx context.Context, machine string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM task_history WHERE machine = ? GROUP BY state`, machine)
	if err != nil {
		return nil, fmt.Errorf("count task records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (task.Record, error) {
	var (
		rec                   task.Record
		args, state           string
		startedNS, finishedNS int64
	)
	if err := row.Scan(
		&rec.ID, &rec.Machine, &rec.Name, &rec.Bin, &rec.Cmd, &args,
		&state, &rec.ExitCode, &rec.Error, &startedNS, &finishedNS,
	); err != nil {
		return task.Record{}, err
	}

	if err := json.Unmarshal([]byte(args), &rec.Args); err != nil {
		return task.Record{}, fmt.Errorf("decode args: %w", err)
	}
	parsed, err := task.ParseState(state)
	if err != nil {
		return task.Record{}, err
	}
	rec.State = parsed
	rec.Started = fromUnixNano(startedNS)
	rec.Finished = fromUnixNano(finishedNS)
	return rec, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
