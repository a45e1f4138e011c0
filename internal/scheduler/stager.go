package scheduler

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/render"
)

// Stager turns a campaign draft plus a contact list into staged queue
// rows. Rendering and jitter assignment happen here, once, so a message
// is immutable content-wise from staging onward.
type Stager struct {
	store    *queue.Store
	renderer *render.Renderer
	jitter   func() int
}

// NewStager builds a stager over the queue store.
func NewStager(store *queue.Store, renderer *render.Renderer) *Stager {
	return &Stager{
		store:    store,
		renderer: renderer,
		jitter:   defaultJitter,
	}
}

// defaultJitter draws the humanizing delay applied before each dispatch.
func defaultJitter() int {
	return domain.DelaySecondsMin + rand.Intn(domain.DelaySecondsMax-domain.DelaySecondsMin+1)
}

// Stage renders one message per contact and inserts the batch as staged.
// The campaign moves to staged; scheduling happens later, at launch.
// Contacts are upserted by address first, so every queue row carries the
// canonical contact id the suppression ledger also writes to.
func (st *Stager) Stage(ctx context.Context, c *domain.Campaign, subjectTmpl, bodyTmpl string, contacts []*domain.Contact) (int, error) {
	if len(contacts) == 0 {
		return 0, fmt.Errorf("stage campaign %s: empty contact list", c.ID)
	}

	if err := st.store.UpsertContacts(ctx, contacts); err != nil {
		return 0, err
	}

	msgs := make([]*domain.Message, 0, len(contacts))
	for _, contact := range contacts {
		bindings := render.ContactBindings(contact)
		subject, err := st.renderer.Render(subjectTmpl, bindings)
		if err != nil {
			return 0, fmt.Errorf("render subject for %s: %w", contact.ID, err)
		}
		body, err := st.renderer.Render(bodyTmpl, bindings)
		if err != nil {
			return 0, fmt.Errorf("render body for %s: %w", contact.ID, err)
		}

		msgs = append(msgs, &domain.Message{
			ID:           uuid.NewString(),
			CampaignID:   c.ID,
			ContactID:    contact.ID,
			ToEmail:      contact.Email,
			Subject:      subject,
			Body:         body,
			DelaySeconds: st.jitter(),
			Status:       domain.MessageStaged,
			Metadata: map[string]string{
				"campaign_name": c.Name,
			},
		})
	}

	if err := st.store.InsertBatch(ctx, msgs); err != nil {
		return 0, err
	}
	if err := st.store.SetCampaignStatus(ctx, c.ID, domain.CampaignStaged); err != nil {
		return 0, err
	}

	logger.Info("campaign staged", "campaign_id", c.ID, "messages", len(msgs))
	return len(msgs), nil
}
