package domain

import "time"

// SuppressionReason records why a contact was suppressed. The most recent
// suppressing event wins the reason field; the boolean flags themselves are
// one-way and never reset.
type SuppressionReason string

const (
	ReasonBounce        SuppressionReason = "bounce"
	ReasonUnsubscribe   SuppressionReason = "unsubscribe"
	ReasonSpamComplaint SuppressionReason = "spam_complaint"
)

// Contact is a campaign recipient with its global suppression state.
type Contact struct {
	ID        string `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	GloballyUnsubscribed bool               `json:"globally_unsubscribed" db:"globally_unsubscribed"`
	GloballyBounced      bool               `json:"globally_bounced" db:"globally_bounced"`
	SuppressionReason    *SuppressionReason `json:"suppression_reason" db:"suppression_reason"`
	SuppressionDate      *time.Time         `json:"suppression_date" db:"suppression_date"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsSuppressed reports whether the contact must be excluded from all
// future scheduling.
func (c *Contact) IsSuppressed() bool {
	return c.GloballyUnsubscribed || c.GloballyBounced
}
