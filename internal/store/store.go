// Package store is the durable layer: user balances, table records,
// and completed-game snapshots, backed by sqlite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrVersionConflict = errors.New("store: version conflict")
)

// saveRetries is how many times an optimistic table save is retried
// before the conflict is surfaced to the caller.
const saveRetries = 3

// Store wraps the sqlite database shared by the session layer and the
// ledger.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (and if needed creates) the database at path. ":memory:"
// is supported for tests.
func Open(path string, logger *log.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite permits one writer at a time, and a single pooled
	// connection keeps ":memory:" databases coherent across calls
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger.WithPrefix("store")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for the ledger, which shares the database.
func (s *Store) DB() *sql.DB {
	return s.db
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username     TEXT PRIMARY KEY,
			chips        INTEGER NOT NULL DEFAULT 0,
			hands_played INTEGER NOT NULL DEFAULT 0,
			hands_won    INTEGER NOT NULL DEFAULT 0,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tables (
			id         TEXT PRIMARY KEY,
			stake      INTEGER NOT NULL,
			preset     INTEGER NOT NULL DEFAULT 0,
			status     TEXT NOT NULL DEFAULT 'waiting',
			hand_state TEXT,
			version    INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id           TEXT PRIMARY KEY,
			table_id     TEXT NOT NULL,
			stake        INTEGER NOT NULL,
			seats        TEXT NOT NULL,
			winners      TEXT NOT NULL,
			win_type     TEXT NOT NULL,
			round_scores TEXT NOT NULL,
			final_state  TEXT NOT NULL,
			started_at   TIMESTAMP,
			ended_at     TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			transaction_id TEXT PRIMARY KEY,
			username       TEXT NOT NULL,
			table_id       TEXT NOT NULL,
			game_id        TEXT NOT NULL,
			kind           TEXT NOT NULL,
			amount         INTEGER NOT NULL,
			balance_before INTEGER NOT NULL,
			balance_after  INTEGER NOT NULL,
			win_type       TEXT,
			status         TEXT NOT NULL,
			created_at     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// User is a registered player (or a bot account).
type User struct {
	Username    string
	Chips       int64
	HandsPlayed int64
	HandsWon    int64
}

// EnsureUser creates the user with the given starting chips if absent
// and returns the stored row either way.
func (s *Store) EnsureUser(ctx context.Context, username string, startingChips int64) (*User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, chips) VALUES (?, ?)
		 ON CONFLICT(username) DO NOTHING`, username, startingChips)
	if err != nil {
		return nil, fmt.Errorf("ensure user %s: %w", username, err)
	}
	return s.GetUser(ctx, username)
}

// GetUser returns a user row or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, username string) (*User, error) {
	u := &User{Username: username}
	err := s.db.QueryRowContext(ctx,
		`SELECT chips, hands_played, hands_won FROM users WHERE username = ?`, username).
		Scan(&u.Chips, &u.HandsPlayed, &u.HandsWon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	return u, nil
}

// RecordResult bumps a user's aggregate stats after a hand.
func (s *Store) RecordResult(ctx context.Context, username string, won bool) error {
	wonInc := 0
	if won {
		wonInc = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET hands_played = hands_played + 1, hands_won = hands_won + ?
		 WHERE username = ?`, wonInc, username)
	if err != nil {
		return fmt.Errorf("record result for %s: %w", username, err)
	}
	return nil
}

// TableRecord is the persisted shape of a table.
type TableRecord struct {
	ID      string
	Stake   int
	Preset  bool
	Status  string
	Version int64
}

// UpsertPresetTable registers a preset table at boot. Preset tables are
// never deleted; their stake and preset flag win over whatever was
// stored.
func (s *Store) UpsertPresetTable(ctx context.Context, id string, stake int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tables (id, stake, preset, status) VALUES (?, ?, 1, 'waiting')
		 ON CONFLICT(id) DO UPDATE SET stake = excluded.stake, preset = 1`, id, stake)
	if err != nil {
		return fmt.Errorf("upsert preset table %s: %w", id, err)
	}
	return nil
}

// InsertTable registers a dynamic overflow table.
func (s *Store) InsertTable(ctx context.Context, id string, stake int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tables (id, stake, preset, status) VALUES (?, ?, 0, 'waiting')`, id, stake)
	if err != nil {
		return fmt.Errorf("insert table %s: %w", id, err)
	}
	return nil
}

// SaveTable persists a table's status under optimistic concurrency:
// the write only lands if the stored version still matches, and the
// record's version is bumped. Conflicts are retried against a fresh
// read up to three times.
func (s *Store) SaveTable(ctx context.Context, rec *TableRecord) error {
	var lastErr error
	for attempt := 0; attempt < saveRetries; attempt++ {
		res, err := s.db.ExecContext(ctx,
			`UPDATE tables SET status = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ? AND version = ?`, rec.Status, rec.ID, rec.Version)
		if err != nil {
			return fmt.Errorf("save table %s: %w", rec.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("save table %s: %w", rec.ID, err)
		}
		if n == 1 {
			rec.Version++
			return nil
		}

		// Someone else moved the row; pick up their version and retry.
		lastErr = ErrVersionConflict
		fresh, err := s.GetTable(ctx, rec.ID)
		if err != nil {
			return err
		}
		rec.Version = fresh.Version
	}
	return fmt.Errorf("save table %s after %d attempts: %w", rec.ID, saveRetries, lastErr)
}

// SaveHandState snapshots the in-progress hand for a table. The hand
// snapshot rides outside the version column: it is rewritten on every
// action and the actor is its only writer.
func (s *Store) SaveHandState(ctx context.Context, tableID string, state any) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("save hand state for %s: %w", tableID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tables SET hand_state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(blob), tableID)
	if err != nil {
		return fmt.Errorf("save hand state for %s: %w", tableID, err)
	}
	return nil
}

// GetHandState loads the stored hand snapshot into out, reporting
// ErrNotFound when the table has none.
func (s *Store) GetHandState(ctx context.Context, tableID string, out any) error {
	var blob sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT hand_state FROM tables WHERE id = ?`, tableID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get hand state for %s: %w", tableID, err)
	}
	if !blob.Valid || blob.String == "" {
		return fmt.Errorf("hand state for %s: %w", tableID, ErrNotFound)
	}
	return json.Unmarshal([]byte(blob.String), out)
}

// ListTableIDs returns every table row id.
func (s *Store) ListTableIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tables`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTable loads a table record.
func (s *Store) GetTable(ctx context.Context, id string) (*TableRecord, error) {
	rec := &TableRecord{ID: id}
	var preset int
	err := s.db.QueryRowContext(ctx,
		`SELECT stake, preset, status, version FROM tables WHERE id = ?`, id).
		Scan(&rec.Stake, &preset, &rec.Status, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get table %s: %w", id, err)
	}
	rec.Preset = preset == 1
	return rec, nil
}

// DeleteTable removes a dynamic table. Preset tables are left alone.
func (s *Store) DeleteTable(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tables WHERE id = ? AND preset = 0`, id)
	if err != nil {
		return fmt.Errorf("delete table %s: %w", id, err)
	}
	return nil
}

// GameRecord is one completed hand.
type GameRecord struct {
	ID          string
	TableID     string
	Stake       int
	Seats       []string
	Winners     []int
	WinType     string
	RoundScores []int
	FinalState  any
	StartedAt   time.Time
	EndedAt     time.Time
}

// SaveGame snapshots a completed hand.
func (s *Store) SaveGame(ctx context.Context, rec *GameRecord) error {
	seats, err := json.Marshal(rec.Seats)
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.ID, err)
	}
	winners, err := json.Marshal(rec.Winners)
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.ID, err)
	}
	scores, err := json.Marshal(rec.RoundScores)
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.ID, err)
	}
	final, err := json.Marshal(rec.FinalState)
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games (id, table_id, stake, seats, winners, win_type, round_scores, final_state, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TableID, rec.Stake, string(seats), string(winners), rec.WinType,
		string(scores), string(final), rec.StartedAt, rec.EndedAt)
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.ID, err)
	}
	return nil
}

// CountGames returns the number of completed hands recorded for a table.
func (s *Store) CountGames(ctx context.Context, tableID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM games WHERE table_id = ?`, tableID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count games for %s: %w", tableID, err)
	}
	return n, nil
}
