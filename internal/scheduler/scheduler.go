// Package scheduler assigns staged messages to the shared domain rotation.
// A scheduling pass runs under a distributed lock and a single database
// transaction, so slot state moves forward atomically no matter how many
// engine instances are running.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/distlock"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/suppression"
)

const slotLockKey = "scheduler:domain-slots"

// ErrNoSlots means the rotation table is empty and nothing can be scheduled.
var ErrNoSlots = errors.New("scheduler: no domain slots configured")

// ConflictError reports a launch refused because of campaign state, such
// as launching a campaign that is already scheduled.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "scheduler: " + e.Reason }

// Result summarizes one scheduling pass.
type Result struct {
	CampaignID string     `json:"campaign_id"`
	Scheduled  int        `json:"scheduled"`
	Skipped    int        `json:"skipped_suppressed"`
	FirstSend  *time.Time `json:"first_send,omitempty"`
	LastSend   *time.Time `json:"last_send,omitempty"`
}

// Scheduler runs scheduling passes against the queue store.
type Scheduler struct {
	store  *queue.Store
	ledger *suppression.Ledger
	db     *sql.DB
	rdb    *redis.Client
	rules  Rules
	now    func() time.Time
}

// New builds a scheduler. rdb may be nil; locking then falls back to
// PostgreSQL advisory locks on db.
func New(store *queue.Store, ledger *suppression.Ledger, db *sql.DB, rdb *redis.Client, rules Rules) *Scheduler {
	return &Scheduler{
		store:  store,
		ledger: ledger,
		db:     db,
		rdb:    rdb,
		rules:  rules,
		now:    time.Now,
	}
}

// Launch schedules the campaign's staged messages, all of them or just
// those addressed to the given recipients. The campaign must be in the
// staged state; re-launching a scheduled campaign is a conflict, which is
// what prevents double-scheduling.
func (s *Scheduler) Launch(ctx context.Context, campaignID string, recipients []string) (*Result, error) {
	return s.run(ctx, campaignID, recipients, true)
}

// RetryFailed re-stages the campaign's transient failures that still have
// attempts left, then schedules them with fresh slot assignments. Terminal
// failures and exhausted messages are untouched.
func (s *Scheduler) RetryFailed(ctx context.Context, campaignID string) (*Result, error) {
	n, err := s.store.ResetForRetry(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &Result{CampaignID: campaignID}, nil
	}
	logger.Info("failed messages re-staged for retry",
		"campaign_id", campaignID, "count", n)
	return s.run(ctx, campaignID, nil, false)
}

// run is one locked scheduling pass. requireStaged enforces the launch
// state machine; the retry path skips it because the campaign may already
// be sending.
func (s *Scheduler) run(ctx context.Context, campaignID string, recipients []string, requireStaged bool) (*Result, error) {
	var res *Result
	lock := distlock.New(s.rdb, s.db, slotLockKey, 2*time.Minute)
	err := distlock.Guard(ctx, lock, func(ctx context.Context) error {
		var err error
		res, err = s.pass(ctx, campaignID, recipients, requireStaged)
		return err
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		return nil, &ConflictError{Reason: "another scheduling pass is in progress"}
	}
	return res, err
}

func (s *Scheduler) pass(ctx context.Context, campaignID string, recipients []string, requireStaged bool) (*Result, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin scheduling pass: %w", err)
	}
	defer tx.Rollback()

	c, err := s.store.GetCampaignForUpdate(ctx, tx, campaignID)
	if err != nil {
		return nil, err
	}
	if requireStaged {
		if ok, reason := c.CanLaunch(); !ok {
			return nil, &ConflictError{Reason: reason}
		}
	}

	msgs, err := s.store.StagedForUpdate(ctx, tx, campaignID, recipients)
	if err != nil {
		return nil, err
	}

	res := &Result{CampaignID: campaignID}
	if len(msgs) == 0 {
		if requireStaged {
			return nil, &ConflictError{Reason: "campaign has no staged messages to schedule"}
		}
		return res, tx.Commit()
	}

	// Suppressed recipients never consume slots. Their rows stay staged;
	// a later re-stage or cancel decides their fate.
	sendable := msgs[:0]
	for _, m := range msgs {
		suppressed, err := s.ledger.IsSuppressed(ctx, m.ContactID)
		if err != nil {
			return nil, err
		}
		if suppressed {
			logger.Info("skipping suppressed recipient",
				"campaign_id", campaignID, "message_id", m.ID)
			res.Skipped++
			continue
		}
		sendable = append(sendable, m)
	}

	slots, err := s.store.SlotsForUpdate(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}

	plan := NewPlanner(s.rules).Plan(slots, sendable, s.now().UTC())
	for _, a := range plan {
		if err := s.store.MarkScheduled(ctx, tx, a.MessageID, a.SlotIdx, a.FromEmail, a.ScheduledFor); err != nil {
			return nil, err
		}
		if err := s.store.TouchSlot(ctx, tx, a.SlotIdx, a.ScheduledFor); err != nil {
			return nil, err
		}
		res.Scheduled++
		at := a.ScheduledFor
		if res.FirstSend == nil || at.Before(*res.FirstSend) {
			first := at
			res.FirstSend = &first
		}
		if res.LastSend == nil || at.After(*res.LastSend) {
			last := at
			res.LastSend = &last
		}
	}

	if res.Scheduled > 0 {
		if err := s.store.SetCampaignStatusTx(ctx, tx, campaignID, domain.CampaignScheduled); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit scheduling pass: %w", err)
	}

	logger.Info("scheduling pass complete",
		"campaign_id", campaignID,
		"scheduled", res.Scheduled,
		"skipped_suppressed", res.Skipped)
	return res, nil
}
