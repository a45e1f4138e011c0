package domain

import (
	"fmt"
	"time"
)

// DomainSlot is one sending identity in the shared rotation pool: a domain,
// a from-address local part, and the timestamp of the last message scheduled
// against it. Slot state is shared across every campaign; it is never owned
// by a single launch.
type DomainSlot struct {
	Idx            int        `json:"idx" db:"idx"`
	Domain         string     `json:"domain" db:"domain"`
	SenderLocal    string     `json:"sender_local" db:"sender_local"`
	DisplayName    string     `json:"display_name" db:"display_name"`
	LastAssignedAt *time.Time `json:"last_assigned_at" db:"last_assigned_at"`
}

// FromAddress renders the slot's RFC 5322 from header value.
func (s *DomainSlot) FromAddress() string {
	return fmt.Sprintf("%s <%s@%s>", s.DisplayName, s.SenderLocal, s.Domain)
}
