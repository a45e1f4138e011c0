package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/suppression"
)

// Processor applies normalized events to the queue and the suppression
// ledger. Every event passes the dedup gate first: an event id seen
// before is dropped without side effects, which is what makes webhook
// redelivery safe.
type Processor struct {
	db     *sql.DB
	store  *queue.Store
	ledger *suppression.Ledger
}

// NewProcessor wires the processor to its stores.
func NewProcessor(db *sql.DB, store *queue.Store, ledger *suppression.Ledger) *Processor {
	return &Processor{db: db, store: store, ledger: ledger}
}

// BatchResult summarizes one processed webhook batch.
type BatchResult struct {
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
	Ignored    int `json:"ignored"`
}

// ProcessBatch applies a batch of events. Event-level failures are logged
// and counted but do not abort the batch; the provider will not redeliver
// a batch the engine has accepted.
func (p *Processor) ProcessBatch(ctx context.Context, evts []Event) (*BatchResult, error) {
	res := &BatchResult{}
	touched := make(map[string]bool)

	for _, e := range evts {
		if e.Kind == KindUnknown {
			logger.Debug("ignoring unknown event type", "type", e.RawType)
			res.Ignored++
			continue
		}
		if e.Kind == KindDelivery {
			res.Ignored++
			continue
		}

		fresh, err := p.markSeen(ctx, e)
		if err != nil {
			return res, err
		}
		if !fresh {
			res.Duplicates++
			continue
		}

		campaignID, err := p.apply(ctx, e)
		if err != nil {
			logger.Warn("event processing failed",
				"event_id", e.ID, "kind", string(e.Kind), "error", err.Error())
			continue
		}
		res.Processed++
		if campaignID != "" {
			touched[campaignID] = true
		}
	}

	for campaignID := range touched {
		if err := p.store.RefreshCampaignCounters(ctx, campaignID); err != nil {
			logger.Warn("counter refresh failed", "campaign_id", campaignID, "error", err.Error())
		}
	}
	return res, nil
}

// markSeen records the event id, reporting false for a duplicate.
func (p *Processor) markSeen(ctx context.Context, e Event) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, recipient, event_timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, e.ID, string(e.Kind), e.Recipient, e.OccurredAt)
	if err != nil {
		return false, fmt.Errorf("record event id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// apply performs the event's side effects and returns the affected
// campaign id, if the event could be correlated to a message.
func (p *Processor) apply(ctx context.Context, e Event) (string, error) {
	msg, err := p.correlate(ctx, e)
	if err != nil && !errors.Is(err, queue.ErrNotFound) {
		return "", err
	}

	switch e.Kind {
	case KindBounce:
		if err := p.ledger.SuppressBounce(ctx, e.Recipient, e.OccurredAt); err != nil {
			return "", err
		}
		if msg != nil {
			if err := p.store.RecordBounce(ctx, msg.ID, e.OccurredAt); err != nil {
				return "", err
			}
			return msg.CampaignID, nil
		}
	case KindComplaint:
		if err := p.ledger.SuppressComplaint(ctx, e.Recipient, e.OccurredAt); err != nil {
			return "", err
		}
		if msg != nil {
			if err := p.store.RecordUnsubscribe(ctx, msg.ID, e.OccurredAt); err != nil {
				return "", err
			}
			return msg.CampaignID, nil
		}
	case KindUnsubscribe:
		if err := p.ledger.SuppressUnsubscribe(ctx, e.Recipient, e.OccurredAt); err != nil {
			return "", err
		}
		if msg != nil {
			if err := p.store.RecordUnsubscribe(ctx, msg.ID, e.OccurredAt); err != nil {
				return "", err
			}
			return msg.CampaignID, nil
		}
	case KindReply:
		// Replies never suppress; they only enrich the message record.
		if msg != nil {
			if err := p.store.RecordReply(ctx, msg.ID, e.Subject, e.OccurredAt); err != nil {
				return "", err
			}
			return msg.CampaignID, nil
		}
	}
	return "", nil
}

// correlate finds the queue row an event refers to: direct message id
// from metadata first, then the transmission id, then the newest message
// to the recipient within the event's campaign.
func (p *Processor) correlate(ctx context.Context, e Event) (*domain.Message, error) {
	if e.MessageID != "" {
		if msg, err := p.store.GetMessage(ctx, e.MessageID); err == nil {
			return msg, nil
		} else if !errors.Is(err, queue.ErrNotFound) {
			return nil, err
		}
	}
	if e.TransmissionID != "" {
		if msg, err := p.store.GetByTransmissionID(ctx, e.TransmissionID); err == nil {
			return msg, nil
		} else if !errors.Is(err, queue.ErrNotFound) {
			return nil, err
		}
	}
	if e.CampaignID != "" && e.Recipient != "" {
		return p.store.LatestByRecipient(ctx, e.CampaignID, e.Recipient)
	}
	return nil, queue.ErrNotFound
}
