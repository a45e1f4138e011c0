// Package queue is the PostgreSQL persistence layer for the email queue,
// campaigns, and the shared domain-slot rotation. The queue table is the
// single source of truth for message state; campaign counters are derived
// from it.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/campaign-engine/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("queue: not found")

// Store persists queue state in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore wraps the given database handle.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Begin opens a transaction for multi-row operations such as a
// scheduling pass.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

const msgColumns = `
	id, campaign_id, contact_id, to_email, from_email, subject, body,
	domain_index, delay_seconds, status, scheduled_for, sent_at,
	transmission_id, error_message, error_class, attempts,
	bounced_at, unsubscribed_at, reply_count, last_reply_subject, last_reply_at,
	metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	var meta []byte
	err := row.Scan(
		&m.ID, &m.CampaignID, &m.ContactID, &m.ToEmail, &m.FromEmail, &m.Subject, &m.Body,
		&m.DomainIndex, &m.DelaySeconds, &m.Status, &m.ScheduledFor, &m.SentAt,
		&m.TransmissionID, &m.ErrorMessage, &m.ErrorClass, &m.Attempts,
		&m.BouncedAt, &m.UnsubscribedAt, &m.ReplyCount, &m.LastReplySubject, &m.LastReplyAt,
		&meta, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return m, nil
}

// InsertBatch stages a batch of messages in one transaction. Each message
// must already carry its id, recipient, rendered content, and jitter delay.
func (s *Store) InsertBatch(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO email_queue
			(id, campaign_id, contact_id, to_email, from_email, subject, body,
			 delay_seconds, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		meta, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("encode message metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.CampaignID, m.ContactID, m.ToEmail, m.FromEmail,
			m.Subject, m.Body, m.DelaySeconds, domain.MessageStaged, meta,
		); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// UpsertContacts writes the batch's contacts keyed by normalized address,
// in one transaction. An address already known keeps its existing row, and
// the canonical row id is stamped back onto each contact, so queue rows
// always reference the same contact the suppression ledger writes to.
func (s *Store) UpsertContacts(ctx context.Context, contacts []*domain.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert contacts: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contacts (id, email, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), contacts.first_name),
			last_name  = COALESCE(NULLIF(EXCLUDED.last_name, ''), contacts.last_name)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert contact: %w", err)
	}
	defer stmt.Close()

	for _, c := range contacts {
		email := strings.ToLower(strings.TrimSpace(c.Email))
		if email == "" {
			return errors.New("upsert contact: empty address")
		}
		c.Email = email
		if err := stmt.QueryRowContext(ctx, c.ID, email, c.FirstName, c.LastName).Scan(&c.ID); err != nil {
			return fmt.Errorf("upsert contact %s: %w", email, err)
		}
	}

	return tx.Commit()
}

// StagedForUpdate loads a campaign's staged messages inside tx, locking the
// rows so a concurrent pass cannot schedule them twice. Order is creation
// order, which is the staging order. A non-empty recipients list narrows
// the pass to those addresses.
func (s *Store) StagedForUpdate(ctx context.Context, tx *sql.Tx, campaignID string, recipients []string) ([]*domain.Message, error) {
	q := `
		SELECT ` + msgColumns + `
		FROM email_queue
		WHERE campaign_id = $1 AND status = $2`
	args := []any{campaignID, domain.MessageStaged}
	if len(recipients) > 0 {
		lowered := make([]string, len(recipients))
		for i, r := range recipients {
			lowered[i] = strings.ToLower(strings.TrimSpace(r))
		}
		q += ` AND LOWER(to_email) = ANY($3)`
		args = append(args, pq.Array(lowered))
	}
	q += `
		ORDER BY created_at, id
		FOR UPDATE`

	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("load staged messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staged message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkScheduled records a slot assignment inside a scheduling transaction.
func (s *Store) MarkScheduled(ctx context.Context, tx *sql.Tx, id string, domainIndex int, fromEmail string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $1, domain_index = $2, from_email = $3,
		    scheduled_for = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, domain.MessageScheduled, domainIndex, fromEmail, at, id, domain.MessageStaged)
	if err != nil {
		return fmt.Errorf("mark scheduled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSuppressedSkip fails a claimed message whose recipient was suppressed
// after scheduling. No attempt is burned; the message never reached a
// provider.
func (s *Store) MarkSuppressedSkip(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $1, error_message = 'recipient suppressed',
		    error_class = $2, updated_at = NOW()
		WHERE id = $3
	`, domain.MessageFailed, domain.ErrorTerminal, id)
	if err != nil {
		return fmt.Errorf("mark suppressed skip: %w", err)
	}
	return nil
}

// ClaimDue atomically claims up to limit due messages, flipping them to
// sending. SKIP LOCKED lets multiple workers poll the same table without
// claiming the same rows. Messages of paused or cancelled campaigns stay
// in the queue untouched.
func (s *Store) ClaimDue(ctx context.Context, limit int, now time.Time) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE email_queue
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT q.id
			FROM email_queue q
			JOIN campaigns c ON c.id = q.campaign_id
			WHERE q.status = $2
			  AND q.scheduled_for <= $3
			  AND c.status NOT IN ('paused', 'cancelled')
			ORDER BY q.scheduled_for, q.id
			LIMIT $4
			FOR UPDATE OF q SKIP LOCKED
		)
		RETURNING `+msgColumns+`
	`, domain.MessageSending, domain.MessageScheduled, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkSent records a provider acceptance. Attempts counts every handoff
// to a provider, successful or not.
func (s *Store) MarkSent(ctx context.Context, id, transmissionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $1, transmission_id = $2, sent_at = $3,
		    attempts = attempts + 1, error_message = NULL, error_class = NULL,
		    updated_at = NOW()
		WHERE id = $4
	`, domain.MessageSent, transmissionID, at, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure with its classification.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string, class domain.ErrorClass) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $1, error_message = $2, error_class = $3,
		    attempts = attempts + 1, updated_at = NOW()
		WHERE id = $4
	`, domain.MessageFailed, errMsg, class, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ReleaseToScheduled puts a claimed message back without burning an
// attempt, used when the worker shuts down mid-batch before the send.
func (s *Store) ReleaseToScheduled(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, domain.MessageScheduled, id, domain.MessageSending)
	if err != nil {
		return fmt.Errorf("release message: %w", err)
	}
	return nil
}

// ResetForRetry moves a campaign's retryable failures back to staged so
// the scheduler can assign them fresh slots. Only transient failures under
// the attempt cap qualify; terminal failures stay failed forever.
func (s *Store) ResetForRetry(ctx context.Context, campaignID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET status = $1, scheduled_for = NULL, domain_index = NULL,
		    error_message = NULL, error_class = NULL, updated_at = NOW()
		WHERE campaign_id = $2
		  AND status = $3
		  AND error_class = $4
		  AND attempts < $5
	`, domain.MessageStaged, campaignID, domain.MessageFailed,
		domain.ErrorTransient, domain.MaxSendAttempts)
	if err != nil {
		return 0, fmt.Errorf("reset for retry: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns the campaign's message counts keyed by status.
func (s *Store) CountByStatus(ctx context.Context, campaignID string) (map[domain.MessageStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM email_queue
		WHERE campaign_id = $1
		GROUP BY status
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.MessageStatus]int)
	for rows.Next() {
		var st domain.MessageStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// GetMessage loads one queue row by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+msgColumns+`
		FROM email_queue
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// GetByTransmissionID finds the message a provider event refers to.
func (s *Store) GetByTransmissionID(ctx context.Context, transmissionID string) (*domain.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+msgColumns+`
		FROM email_queue
		WHERE transmission_id = $1
	`, transmissionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get by transmission id: %w", err)
	}
	return m, nil
}

// LatestByRecipient finds the newest message to an address within a
// campaign. Events that arrive without a transmission id correlate this way.
func (s *Store) LatestByRecipient(ctx context.Context, campaignID, email string) (*domain.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+msgColumns+`
		FROM email_queue
		WHERE campaign_id = $1 AND LOWER(to_email) = LOWER($2)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, campaignID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest by recipient: %w", err)
	}
	return m, nil
}

// LatestSentToAddress finds the newest sent message to an address across
// all campaigns, used to credit mailbox replies that carry no provider
// correlation data.
func (s *Store) LatestSentToAddress(ctx context.Context, email string) (*domain.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+msgColumns+`
		FROM email_queue
		WHERE LOWER(to_email) = LOWER($1) AND status = $2
		ORDER BY sent_at DESC
		LIMIT 1
	`, email, domain.MessageSent))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest sent to address: %w", err)
	}
	return m, nil
}

// RecordBounce stamps the message's bounce time.
func (s *Store) RecordBounce(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET bounced_at = COALESCE(bounced_at, $1), updated_at = NOW()
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("record bounce: %w", err)
	}
	return nil
}

// RecordUnsubscribe stamps the message's unsubscribe time.
func (s *Store) RecordUnsubscribe(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET unsubscribed_at = COALESCE(unsubscribed_at, $1), updated_at = NOW()
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("record unsubscribe: %w", err)
	}
	return nil
}

// RecordReply increments the message's reply counter and remembers the
// latest reply subject.
func (s *Store) RecordReply(ctx context.Context, id, subject string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue
		SET reply_count = reply_count + 1,
		    last_reply_subject = $1, last_reply_at = $2, updated_at = NOW()
		WHERE id = $3
	`, subject, at, id)
	if err != nil {
		return fmt.Errorf("record reply: %w", err)
	}
	return nil
}
