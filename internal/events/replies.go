package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
)

// InboundMessage is a message pulled from the monitored reply mailbox.
type InboundMessage struct {
	From       string
	Subject    string
	InReplyTo  string
	References string
	ReceivedAt time.Time
}

// ReplySource yields inbound mailbox messages received after since.
type ReplySource interface {
	Fetch(ctx context.Context, since time.Time) ([]InboundMessage, error)
}

// ReplyDetector polls a mailbox source and credits replies to the queue
// rows that triggered them.
type ReplyDetector struct {
	source ReplySource
	store  *queue.Store
	since  time.Time
	now    func() time.Time
}

// NewReplyDetector wires a detector to its source and store. The first
// poll fetches the whole mailbox; later polls only what arrived since.
func NewReplyDetector(source ReplySource, store *queue.Store) *ReplyDetector {
	return &ReplyDetector{source: source, store: store, now: time.Now}
}

// Run polls at the given interval until ctx is cancelled.
func (d *ReplyDetector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := d.Poll(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("reply poll failed", "error", err.Error())
		} else if n > 0 {
			logger.Info("replies credited", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches pending inbound messages and records the ones that are
// replies to sent campaign mail. Returns the number of replies credited.
func (d *ReplyDetector) Poll(ctx context.Context) (int, error) {
	start := d.now()
	inbound, err := d.source.Fetch(ctx, d.since)
	if err != nil {
		return 0, err
	}

	credited := 0
	touched := make(map[string]bool)
	for _, in := range inbound {
		if !IsReply(in.Subject, in.InReplyTo, in.References) {
			continue
		}
		msg, err := d.correlate(ctx, in)
		if errors.Is(err, queue.ErrNotFound) {
			continue
		}
		if err != nil {
			return credited, err
		}
		if err := d.store.RecordReply(ctx, msg.ID, in.Subject, in.ReceivedAt); err != nil {
			return credited, err
		}
		credited++
		touched[msg.CampaignID] = true
	}

	for campaignID := range touched {
		if err := d.store.RefreshCampaignCounters(ctx, campaignID); err != nil {
			logger.Warn("counter refresh failed", "campaign_id", campaignID, "error", err.Error())
		}
	}
	d.since = start
	return credited, nil
}

// correlate finds the sent message an inbound one answers. Threading
// headers carry our transmission id and are tried first; the latest sent
// message to the replying address is the fallback.
func (d *ReplyDetector) correlate(ctx context.Context, in InboundMessage) (*domain.Message, error) {
	for _, ref := range threadRefs(in.InReplyTo, in.References) {
		msg, err := d.store.GetByTransmissionID(ctx, ref)
		if errors.Is(err, queue.ErrNotFound) {
			continue
		}
		return msg, err
	}
	return d.store.LatestSentToAddress(ctx, in.From)
}

// threadRefs extracts candidate transmission ids from the In-Reply-To and
// References headers. A message id like <tx-9@mail.example.com> yields
// "tx-9".
func threadRefs(inReplyTo, references string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(inReplyTo + " " + references) {
		tok = strings.Trim(tok, "<>")
		if i := strings.IndexByte(tok, '@'); i >= 0 {
			tok = tok[:i]
		}
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		refs = append(refs, tok)
	}
	return refs
}

// IsReply reports whether an inbound message answers an earlier one.
// Threading headers are authoritative; without them, a "re:" subject
// counts but a forward does not.
func IsReply(subject, inReplyTo, references string) bool {
	if strings.TrimSpace(inReplyTo) != "" || strings.TrimSpace(references) != "" {
		return true
	}
	s := strings.ToLower(strings.TrimSpace(subject))
	if strings.HasPrefix(s, "fwd:") || strings.HasPrefix(s, "fw:") {
		return false
	}
	return strings.HasPrefix(s, "re:")
}
