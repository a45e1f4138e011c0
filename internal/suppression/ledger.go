// Package suppression maintains the global do-not-contact ledger. Bounce
// and unsubscribe flags are one-way: once set they are never cleared by
// the engine, only by an operator acting outside it. The reason field
// follows the most recent suppressing event.
package suppression

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
)

// ErrNotFound is returned when an address has no contact row.
var ErrNotFound = errors.New("suppression: contact not found")

// Ledger records and answers suppression state.
type Ledger struct {
	db *sql.DB
}

// NewLedger wraps the given database handle.
func NewLedger(db *sql.DB) *Ledger { return &Ledger{db: db} }

// IsSuppressed reports whether the contact is excluded from scheduling.
func (l *Ledger) IsSuppressed(ctx context.Context, contactID string) (bool, error) {
	var unsubbed, bounced bool
	err := l.db.QueryRowContext(ctx, `
		SELECT globally_unsubscribed, globally_bounced
		FROM contacts
		WHERE id = $1
	`, contactID).Scan(&unsubbed, &bounced)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return unsubbed || bounced, nil
}

// IsEmailSuppressed reports whether the address is excluded from sending.
// An address with no contact row is not suppressed.
func (l *Ledger) IsEmailSuppressed(ctx context.Context, email string) (bool, error) {
	c, err := l.Status(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.IsSuppressed(), nil
}

// Status looks up a contact's suppression state by address.
func (l *Ledger) Status(ctx context.Context, email string) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := l.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name,
		       globally_unsubscribed, globally_bounced,
		       suppression_reason, suppression_date, created_at
		FROM contacts
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(
		&c.ID, &c.Email, &c.FirstName, &c.LastName,
		&c.GloballyUnsubscribed, &c.GloballyBounced,
		&c.SuppressionReason, &c.SuppressionDate, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("suppression status: %w", err)
	}
	return c, nil
}

// SuppressBounce marks the address globally bounced. A bounce event for
// an address with no contact row still creates one so the suppression
// sticks for future imports.
func (l *Ledger) SuppressBounce(ctx context.Context, email string, at time.Time) error {
	return l.suppress(ctx, email, at, domain.ReasonBounce)
}

// SuppressUnsubscribe marks the address globally unsubscribed.
func (l *Ledger) SuppressUnsubscribe(ctx context.Context, email string, at time.Time) error {
	return l.suppress(ctx, email, at, domain.ReasonUnsubscribe)
}

// SuppressComplaint handles a spam complaint, which suppresses like an
// unsubscribe but keeps its own reason.
func (l *Ledger) SuppressComplaint(ctx context.Context, email string, at time.Time) error {
	return l.suppress(ctx, email, at, domain.ReasonSpamComplaint)
}

func (l *Ledger) suppress(ctx context.Context, email string, at time.Time, reason domain.SuppressionReason) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return errors.New("suppression: empty address")
	}

	setBounced := reason == domain.ReasonBounce
	setUnsubbed := !setBounced

	// Upsert keyed on the address. The flag for this reason is forced on;
	// the other flag keeps whatever value it had. The reason and date
	// always move to the newest event.
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO contacts
			(id, email, globally_unsubscribed, globally_bounced,
			 suppression_reason, suppression_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			globally_unsubscribed = contacts.globally_unsubscribed OR EXCLUDED.globally_unsubscribed,
			globally_bounced      = contacts.globally_bounced OR EXCLUDED.globally_bounced,
			suppression_reason    = EXCLUDED.suppression_reason,
			suppression_date      = EXCLUDED.suppression_date
	`, uuid.NewString(), email, setUnsubbed, setBounced, reason, at)
	if err != nil {
		return fmt.Errorf("suppress %s: %w", reason, err)
	}
	return nil
}
