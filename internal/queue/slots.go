package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// SlotsForUpdate loads the entire sending rotation inside tx with row
// locks held until commit. Slot state is shared across campaigns, so a
// scheduling pass must see and update it atomically.
func (s *Store) SlotsForUpdate(ctx context.Context, tx *sql.Tx) ([]*domain.DomainSlot, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT idx, domain, sender_local, display_name, last_assigned_at
		FROM domain_slots
		ORDER BY idx
		FOR UPDATE
	`)
	if err != nil {
		return nil, fmt.Errorf("load domain slots: %w", err)
	}
	defer rows.Close()

	var slots []*domain.DomainSlot
	for rows.Next() {
		sl := &domain.DomainSlot{}
		if err := rows.Scan(&sl.Idx, &sl.Domain, &sl.SenderLocal, &sl.DisplayName, &sl.LastAssignedAt); err != nil {
			return nil, fmt.Errorf("scan domain slot: %w", err)
		}
		slots = append(slots, sl)
	}
	return slots, rows.Err()
}

// TouchSlot advances a slot's last assignment time inside the scheduling
// transaction.
func (s *Store) TouchSlot(ctx context.Context, tx *sql.Tx, idx int, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE domain_slots SET last_assigned_at = $1 WHERE idx = $2
	`, at, idx)
	if err != nil {
		return fmt.Errorf("touch domain slot: %w", err)
	}
	return nil
}

// ListSlots returns the rotation without locking, for the stats endpoint.
func (s *Store) ListSlots(ctx context.Context) ([]*domain.DomainSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, domain, sender_local, display_name, last_assigned_at
		FROM domain_slots
		ORDER BY idx
	`)
	if err != nil {
		return nil, fmt.Errorf("list domain slots: %w", err)
	}
	defer rows.Close()

	var slots []*domain.DomainSlot
	for rows.Next() {
		sl := &domain.DomainSlot{}
		if err := rows.Scan(&sl.Idx, &sl.Domain, &sl.SenderLocal, &sl.DisplayName, &sl.LastAssignedAt); err != nil {
			return nil, fmt.Errorf("scan domain slot: %w", err)
		}
		slots = append(slots, sl)
	}
	return slots, rows.Err()
}
