package domain

import (
	"time"
)

// MessageStatus enumerates the lifecycle of a single email in the queue.
// Transitions move strictly forward: staged → scheduled → sending →
// {sent, failed}. A failed message returns to scheduled only through the
// explicit retry operation, never automatically.
type MessageStatus string

const (
	MessageStaged    MessageStatus = "staged"
	MessageScheduled MessageStatus = "scheduled"
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
)

// ErrorClass partitions delivery failures for retry eligibility.
type ErrorClass string

const (
	// ErrorTransient covers network errors, timeouts, and provider 5xx.
	// Transient failures are eligible for the explicit retry pass.
	ErrorTransient ErrorClass = "transient"
	// ErrorTerminal covers provider 4xx: invalid recipients, rejected
	// domains. Never retried.
	ErrorTerminal ErrorClass = "terminal"
)

// Message is one outbound email tied to a campaign and a contact.
type Message struct {
	ID         string `json:"id" db:"id"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	ContactID  string `json:"contact_id" db:"contact_id"`
	ToEmail    string `json:"to_email" db:"to_email"`
	FromEmail  string `json:"from_email" db:"from_email"`
	Subject    string `json:"subject" db:"subject"`
	Body       string `json:"body" db:"body"`

	// DomainIndex is the assigned slot in the shared sending pool.
	// Nil until the scheduler assigns one.
	DomainIndex *int `json:"domain_index" db:"domain_index"`

	// DelaySeconds is the humanizing jitter applied before the send,
	// fixed at staging time (15–100s). Not a correctness mechanism.
	DelaySeconds int `json:"delay_seconds" db:"delay_seconds"`

	Status         MessageStatus `json:"status" db:"status"`
	ScheduledFor   *time.Time    `json:"scheduled_for" db:"scheduled_for"`
	SentAt         *time.Time    `json:"sent_at" db:"sent_at"`
	TransmissionID *string       `json:"transmission_id" db:"transmission_id"`
	ErrorMessage   *string       `json:"error_message" db:"error_message"`
	ErrorClass     *ErrorClass   `json:"error_class" db:"error_class"`
	Attempts       int           `json:"attempts" db:"attempts"`

	// Inbound-event bookkeeping
	BouncedAt        *time.Time `json:"bounced_at" db:"bounced_at"`
	UnsubscribedAt   *time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`
	ReplyCount       int        `json:"reply_count" db:"reply_count"`
	LastReplySubject *string    `json:"last_reply_subject" db:"last_reply_subject"`
	LastReplyAt      *time.Time `json:"last_reply_at" db:"last_reply_at"`

	Metadata  map[string]string `json:"metadata" db:"metadata"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

const (
	// DelaySecondsMin / DelaySecondsMax bound the per-message jitter
	// assigned at staging time.
	DelaySecondsMin = 15
	DelaySecondsMax = 100

	// MaxSendAttempts bounds the explicit retry operation. A transient
	// failure that has already burned this many attempts stays failed.
	MaxSendAttempts = 3
)

// OutboundEmail is the fully-resolved message handed to a transmission
// provider. By the time a message reaches this struct all rendering and
// from-address assignment is complete.
type OutboundEmail struct {
	MessageID  string `json:"message_id"`
	CampaignID string `json:"campaign_id"`
	// CampaignLabel is the provider-visible campaign tag, written as
	// "<name> - <uuid>" so inbound events can be parsed back to the id.
	CampaignLabel string            `json:"campaign_label,omitempty"`
	ContactID     string            `json:"contact_id"`
	To            string            `json:"to"`
	From          string            `json:"from"`
	Subject       string            `json:"subject"`
	HTML          string            `json:"html,omitempty"`
	Text          string            `json:"text,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// SendReceipt is returned by a transmission provider after an accepted send.
type SendReceipt struct {
	TransmissionID string    `json:"transmission_id"`
	AcceptedAt     time.Time `json:"accepted_at"`
}
