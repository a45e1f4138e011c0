package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
)

const campaignColumns = `
	id, name, sender, status, email_format,
	queued_count, sent_count, failed_count, bounced_count, replied_count,
	created_at, updated_at`

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.Name, &c.Sender, &c.Status, &c.EmailFormat,
		&c.QueuedCount, &c.SentCount, &c.FailedCount, &c.BouncedCount, &c.RepliedCount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateCampaign inserts a new campaign in draft state.
func (s *Store) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	if c.EmailFormat == "" {
		c.EmailFormat = "html"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, sender, status, email_format)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.Sender, c.Status, c.EmailFormat)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// GetCampaign loads one campaign.
func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(s.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// GetCampaignForUpdate loads a campaign inside tx with a row lock, used by
// the scheduler to make the launch status check and transition atomic.
func (s *Store) GetCampaignForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(tx.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
		FOR UPDATE
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign for update: %w", err)
	}
	return c, nil
}

// ListCampaigns returns all campaigns, newest first.
func (s *Store) ListCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []*domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetCampaignStatus updates the campaign lifecycle state.
func (s *Store) SetCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
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

// SetCampaignStatusTx is SetCampaignStatus inside a scheduling transaction.
func (s *Store) SetCampaignStatusTx(ctx context.Context, tx *sql.Tx, id string, status domain.CampaignStatus) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
	}
	return nil
}

// RefreshCampaignCounters recomputes the campaign's aggregate counters from
// the queue. The counters are a cache; this is the only way they change.
// A campaign whose queue has fully drained flips to completed.
func (s *Store) RefreshCampaignCounters(ctx context.Context, campaignID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE campaigns c
		SET queued_count  = stats.queued,
		    sent_count    = stats.sent,
		    failed_count  = stats.failed,
		    bounced_count = stats.bounced,
		    replied_count = stats.replied,
		    status = CASE
		        WHEN c.status IN ('scheduled', 'sending')
		             AND stats.queued = 0 AND stats.inflight = 0
		        THEN 'completed'
		        WHEN c.status = 'scheduled' AND stats.inflight > 0
		        THEN 'sending'
		        ELSE c.status
		    END,
		    updated_at = NOW()
		FROM (
			SELECT
				COUNT(*) FILTER (WHERE status IN ('staged', 'scheduled'))   AS queued,
				COUNT(*) FILTER (WHERE status = 'sending')                  AS inflight,
				COUNT(*) FILTER (WHERE status = 'sent')                     AS sent,
				COUNT(*) FILTER (WHERE status = 'failed')                   AS failed,
				COUNT(*) FILTER (WHERE bounced_at IS NOT NULL)              AS bounced,
				COUNT(*) FILTER (WHERE reply_count > 0)                     AS replied
			FROM email_queue
			WHERE campaign_id = $1
		) stats
		WHERE c.id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("refresh campaign counters: %w", err)
	}
	return nil
}
