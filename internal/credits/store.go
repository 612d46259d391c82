// Package credits is the per-user credit ledger. Entries are append-only;
// a user's balance is the sum of credits minus the sum of debits.
package credits

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EntryType distinguishes grants from spend.
type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// Entry is one ledger line. ID and CreatedAt are assigned by the store.
type Entry struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Type        EntryType      `json:"entryType"`
	Credits     int64          `json:"credits"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Validate checks the fields a caller must supply.
func (e Entry) Validate() error {
	if e.UserID == "" {
		return errors.New("user id is required")
	}
	if e.Type != EntryCredit && e.Type != EntryDebit {
		return fmt.Errorf("invalid entry type %q", e.Type)
	}
	if e.Credits <= 0 {
		return fmt.Errorf("credits must be positive, got %d", e.Credits)
	}
	return nil
}

// Summary is a point-in-time view of a user's ledger.
type Summary struct {
	UserID   string `json:"userId"`
	Balance  int64  `json:"balance"`
	Credited int64  `json:"credited"`
	Debited  int64  `json:"debited"`
}

// Store is the ledger surface the orchestrator depends on.
type Store interface {
	GetCreditSummary(ctx context.Context, userID string) (Summary, error)
	RecordCreditEntry(ctx context.Context, entry Entry) error
}
