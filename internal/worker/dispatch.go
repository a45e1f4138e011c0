// Package worker runs the dispatch loop: claim due messages, wait out
// each message's jitter, hand it to the transmission provider, and record
// the outcome. Timing guarantees live entirely in the scheduler; the
// worker only ever sends at or after scheduled_for.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/scheduler"
	"github.com/ignite/campaign-engine/internal/sparkpost"
	"github.com/ignite/campaign-engine/internal/suppression"
)

// Provider submits one rendered message to an email service.
type Provider interface {
	Send(ctx context.Context, email *domain.OutboundEmail) (*domain.SendReceipt, error)
}

// Config holds the worker loop settings.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	SendTimeout  time.Duration
}

// DispatchWorker polls the queue and delivers claimed messages one at a
// time. Multiple workers may run against the same queue; the claim query
// keeps them from colliding.
type DispatchWorker struct {
	store    *queue.Store
	ledger   *suppression.Ledger
	provider Provider
	rules    scheduler.Rules
	cfg      Config

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	sentCount   atomic.Int64
	failedCount atomic.Int64
}

// New builds a worker. Zero config fields get sensible defaults.
func New(store *queue.Store, ledger *suppression.Ledger, provider Provider, rules scheduler.Rules, cfg Config) *DispatchWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &DispatchWorker{
		store:    store,
		ledger:   ledger,
		provider: provider,
		rules:    rules,
		cfg:      cfg,
	}
}

// Start launches the poll loop.
func (w *DispatchWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("worker: already running")
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.running = true

	w.wg.Add(1)
	go w.loop()

	logger.Info("dispatch worker started",
		"batch_size", w.cfg.BatchSize,
		"poll_interval", w.cfg.PollInterval.String())
	return nil
}

// Stop cancels the loop and waits for the in-flight batch to wind down.
// Messages claimed but not yet sent go back to scheduled.
func (w *DispatchWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	logger.Info("dispatch worker stopped",
		"sent", w.sentCount.Load(), "failed", w.failedCount.Load())
}

// Stats reports lifetime counters for the stats endpoint.
func (w *DispatchWorker) Stats() (sent, failed int64) {
	return w.sentCount.Load(), w.failedCount.Load()
}

func (w *DispatchWorker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n := w.runOnce(w.ctx)
		// A full batch means more rows are likely due; drain them now
		// instead of letting them sit out a poll interval.
		if n >= w.cfg.BatchSize && w.ctx.Err() == nil {
			continue
		}
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runOnce claims and dispatches one batch, returning the claimed count.
// Outside the send window it does nothing; due rows wait in the queue
// until the window opens.
func (w *DispatchWorker) runOnce(ctx context.Context) int {
	now := time.Now().UTC()
	if !w.rules.InWindow(now) {
		return 0
	}

	msgs, err := w.store.ClaimDue(ctx, w.cfg.BatchSize, now)
	if err != nil {
		logger.Error("claim failed", "error", err.Error())
		return 0
	}
	if len(msgs) == 0 {
		return 0
	}
	logger.Info("claimed batch", "count", len(msgs))

	touched := make(map[string]bool)
	for i, m := range msgs {
		if ctx.Err() != nil {
			w.releaseRest(msgs[i:])
			break
		}
		if !w.waitJitter(ctx, m.DelaySeconds) {
			w.releaseRest(msgs[i:])
			break
		}
		w.dispatch(ctx, m)
		touched[m.CampaignID] = true
	}

	for campaignID := range touched {
		if err := w.store.RefreshCampaignCounters(context.WithoutCancel(ctx), campaignID); err != nil {
			logger.Warn("counter refresh failed", "campaign_id", campaignID, "error", err.Error())
		}
	}
	return len(msgs)
}

// waitJitter sleeps the message's humanizing delay. Returns false when the
// worker is shutting down.
func (w *DispatchWorker) waitJitter(ctx context.Context, seconds int) bool {
	if seconds <= 0 {
		return true
	}
	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// dispatch sends one message and records the outcome. A failure here
// never touches the rest of the batch. The ledger is checked once more
// right before the send, catching contacts suppressed after scheduling.
func (w *DispatchWorker) dispatch(ctx context.Context, m *domain.Message) {
	suppressed, err := w.ledger.IsEmailSuppressed(ctx, m.ToEmail)
	if err != nil {
		logger.Warn("suppression check failed, sending anyway",
			"message_id", m.ID, "error", err.Error())
	} else if suppressed {
		logger.Info("recipient suppressed since scheduling, skipping",
			"message_id", m.ID)
		if err := w.store.MarkSuppressedSkip(context.WithoutCancel(ctx), m.ID); err != nil {
			logger.Error("mark suppressed errored", "message_id", m.ID, "error", err.Error())
		}
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()

	receipt, err := w.provider.Send(sendCtx, w.buildOutbound(m))
	if err != nil {
		class := Classify(err)
		w.failedCount.Add(1)
		logger.Warn("send failed",
			"message_id", m.ID,
			"recipient", m.ToEmail,
			"class", string(class),
			"error", err.Error())
		if markErr := w.store.MarkFailed(context.WithoutCancel(ctx), m.ID, err.Error(), class); markErr != nil {
			logger.Error("mark failed errored", "message_id", m.ID, "error", markErr.Error())
		}
		return
	}

	w.sentCount.Add(1)
	logger.Info("message sent",
		"message_id", m.ID,
		"recipient", m.ToEmail,
		"transmission_id", receipt.TransmissionID)
	if err := w.store.MarkSent(context.WithoutCancel(ctx), m.ID, receipt.TransmissionID, receipt.AcceptedAt); err != nil {
		logger.Error("mark sent errored", "message_id", m.ID, "error", err.Error())
	}
}

func (w *DispatchWorker) buildOutbound(m *domain.Message) *domain.OutboundEmail {
	out := &domain.OutboundEmail{
		MessageID:     m.ID,
		CampaignID:    m.CampaignID,
		CampaignLabel: CampaignLabel(m.Metadata["campaign_name"], m.CampaignID),
		ContactID:     m.ContactID,
		To:            m.ToEmail,
		From:          m.FromEmail,
		Subject:       m.Subject,
		Metadata: map[string]string{
			"message_id":  m.ID,
			"campaign_id": m.CampaignID,
			"contact_id":  m.ContactID,
		},
	}
	out.HTML = m.Body
	return out
}

func (w *DispatchWorker) releaseRest(msgs []*domain.Message) {
	ctx := context.WithoutCancel(context.Background())
	for _, m := range msgs {
		if err := w.store.ReleaseToScheduled(ctx, m.ID); err != nil {
			logger.Error("release failed", "message_id", m.ID, "error", err.Error())
		}
	}
	logger.Info("released unsent claims", "count", len(msgs))
}

// CampaignLabel builds the provider-visible campaign tag "<name> - <uuid>",
// trimming the name so the uuid always survives the provider's 64-char cap.
func CampaignLabel(name, id string) string {
	if id == "" {
		return name
	}
	const max = 64
	suffix := " - " + id
	if name == "" {
		return id
	}
	if len(name)+len(suffix) > max {
		keep := max - len(suffix)
		if keep < 1 {
			return id
		}
		name = name[:keep]
	}
	return name + suffix
}

// Classify buckets a send error for retry eligibility: provider 4xx is
// terminal, everything else (5xx, 429 after retries, timeouts, network
// failures) is transient.
func Classify(err error) domain.ErrorClass {
	var apiErr *sparkpost.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429 {
			return domain.ErrorTerminal
		}
	}
	return domain.ErrorTransient
}
