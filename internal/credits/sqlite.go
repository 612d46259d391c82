package credits

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added (user_id, created_at) index for ListEntries
const currentSchemaVersion = 1

// SQLiteStore persists the ledger in a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite creates or opens the ledger at path and applies pragmas and
// migrations. Safe to call on an existing database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open credit ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect credit ledger: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_credit_entries_user_created
			ON credit_entries(user_id, created_at)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// GetCreditSummary sums the user's ledger. Unknown users have a zero
// balance.
func (s *SQLiteStore) GetCreditSummary(ctx context.Context, userID string) (Summary, error) {
	sum := Summary{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN credits ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN entry_type = 'debit' THEN credits ELSE 0 END), 0)
		FROM credit_entries WHERE user_id = ?`, userID).Scan(&sum.Credited, &sum.Debited)
	if err != nil {
		return Summary{}, fmt.Errorf("credit summary for %s: %w", userID, err)
	}
	sum.Balance = sum.Credited - sum.Debited
	return sum, nil
}

// RecordCreditEntry appends entry to the ledger.
func (s *SQLiteStore) RecordCreditEntry(ctx context.Context, entry Entry) error {
	_, err := s.insert(ctx, entry)
	return err
}

// GrantCredits appends a credit entry and returns it.
func (s *SQLiteStore) GrantCredits(ctx context.Context, userID string, amount int64, description string) (Entry, error) {
	return s.insert(ctx, Entry{UserID: userID, Type: EntryCredit, Credits: amount, Description: description})
}

func (s *SQLiteStore) insert(ctx context.Context, entry Entry) (Entry, error) {
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return Entry{}, fmt.Errorf("encode metadata: %w", err)
	}

	entry.ID = uuid.Must(uuid.NewV7()).String()
	entry.CreatedAt = s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credit_entries (id, user_id, entry_type, credits, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, string(entry.Type), entry.Credits, entry.Description, string(raw), entry.CreatedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("record %s entry for %s: %w", entry.Type, entry.UserID, err)
	}
	return entry, nil
}

// ListEntries returns up to limit of the user's entries, newest first.
// A non-positive limit returns every entry.
func (s *SQLiteStore) ListEntries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	query := `SELECT id, user_id, entry_type, credits, description, metadata, created_at
		FROM credit_entries WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			entryType string
			metadata  string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &entryType, &e.Credits, &e.Description, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Type = EntryType(entryType)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
