package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/teemow/venuedesk/internal/model"
)

const (
	metaLastRetrieval          = "last_retrieval"
	metaLastAssociationRefresh = "last_association_refresh"
)

// SQLiteStore is the durable store behind the message cache and ledger.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath, enables WAL
// mode and applies pending migrations. ":memory:" yields a private
// in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Each pooled connection to :memory: would see its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

type messageRow struct {
	ID           string `db:"id"`
	ThreadID     string `db:"thread_id"`
	InternalDate int64  `db:"internal_date"`
	Payload      string `db:"payload"`
}

// LoadMessages returns every cached message, newest first.
func (s *SQLiteStore) LoadMessages(ctx context.Context) ([]model.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, thread_id, internal_date, payload FROM messages ORDER BY internal_date DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	out := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		var m model.Message
		if err := json.Unmarshal([]byte(r.Payload), &m); err != nil {
			return nil, fmt.Errorf("decoding message %s: %w", r.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// GetMessage returns one cached message. ok is false when absent.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (msg model.Message, ok bool, err error) {
	var payload string
	err = s.db.GetContext(ctx, &payload, "SELECT payload FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, fmt.Errorf("loading message %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return model.Message{}, false, fmt.Errorf("decoding message %s: %w", id, err)
	}
	return msg, true, nil
}

// SaveMessages upserts a batch of messages in one transaction. Rows for
// ids not in the batch are left untouched.
func (s *SQLiteStore) SaveMessages(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO messages (id, thread_id, internal_date, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id = excluded.thread_id,
			internal_date = excluded.internal_date,
			payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding message %s: %w", m.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.ThreadID, m.InternalDate, string(payload)); err != nil {
			return fmt.Errorf("upserting message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// LoadMetadata returns the cache freshness record. Missing keys are zero.
func (s *SQLiteStore) LoadMetadata(ctx context.Context) (model.CacheMetadata, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT key, value FROM metadata"); err != nil {
		return model.CacheMetadata{}, fmt.Errorf("loading metadata: %w", err)
	}

	var meta model.CacheMetadata
	for _, r := range rows {
		v, err := strconv.ParseInt(r.Value, 10, 64)
		if err != nil {
			return model.CacheMetadata{}, fmt.Errorf("metadata %s: %w", r.Key, err)
		}
		switch r.Key {
		case metaLastRetrieval:
			meta.LastRetrieval = v
		case metaLastAssociationRefresh:
			meta.LastAssociationRefresh = v
		}
	}
	return meta, nil
}

// SetLastRetrieval records the time of the last full refresh.
func (s *SQLiteStore) SetLastRetrieval(ctx context.Context, t time.Time) error {
	return s.setMeta(ctx, metaLastRetrieval, t.UnixMilli())
}

// SetLastAssociationRefresh records the time the association index was rebuilt.
func (s *SQLiteStore) SetLastAssociationRefresh(ctx context.Context, t time.Time) error {
	return s.setMeta(ctx, metaLastAssociationRefresh, t.UnixMilli())
}

func (s *SQLiteStore) setMeta(ctx context.Context, key string, value int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, strconv.FormatInt(value, 10))
	if err != nil {
		return fmt.Errorf("writing metadata %s: %w", key, err)
	}
	return nil
}

type historyRow struct {
	ID        string    `db:"id"`
	Type      string    `db:"type"`
	Timestamp time.Time `db:"timestamp"`
	Fields    string    `db:"fields"`
}

// AppendHistory adds one entry to the ledger. Entries are never updated.
func (s *SQLiteStore) AppendHistory(ctx context.Context, e model.HistoryEntry) error {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("encoding history entry %s: %w", e.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO history (id, type, timestamp, fields) VALUES (?, ?, ?, ?)",
		e.ID, e.Type, e.Timestamp.UTC(), string(fields))
	if err != nil {
		return fmt.Errorf("appending history entry %s: %w", e.ID, err)
	}
	return nil
}

// History returns ledger entries in insertion order, optionally filtered
// by type.
func (s *SQLiteStore) History(ctx context.Context, types ...string) ([]model.HistoryEntry, error) {
	query := "SELECT id, type, timestamp, fields FROM history"
	args := make([]any, 0, len(types))
	if len(types) > 0 {
		query += " WHERE type IN (?" + strings.Repeat(", ?", len(types)-1) + ")"
		for _, t := range types {
			args = append(args, t)
		}
	}
	query += " ORDER BY seq ASC"

	var rows []historyRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	out := make([]model.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		e := model.HistoryEntry{ID: r.ID, Type: r.Type, Timestamp: r.Timestamp}
		if err := json.Unmarshal([]byte(r.Fields), &e.Fields); err != nil {
			return nil, fmt.Errorf("decoding history entry %s: %w", r.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}
