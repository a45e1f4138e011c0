package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/scheduler"
	"github.com/ignite/campaign-engine/internal/suppression"
)

// Health answers liveness probes.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// ListCampaigns returns every campaign, newest first.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.store.ListCampaigns(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": campaigns})
}

type createCampaignRequest struct {
	Name        string `json:"name"`
	Sender      string `json:"sender"`
	EmailFormat string `json:"email_format"`
}

// CreateCampaign inserts a draft campaign.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	c := &domain.Campaign{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Sender:      req.Sender,
		EmailFormat: req.EmailFormat,
	}
	if err := h.store.CreateCampaign(r.Context(), c); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, c)
}

// GetCampaign returns one campaign.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCampaign(r.Context(), chi.URLParam(r, "campaignID"))
	if errors.Is(err, queue.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}

type stageCampaignRequest struct {
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Contacts []struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"contacts"`
}

// StageCampaign renders and stages one message per contact.
func (h *Handlers) StageCampaign(w http.ResponseWriter, r *http.Request) {
	var req stageCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Subject == "" || req.Body == "" {
		httputil.BadRequest(w, "subject and body are required")
		return
	}
	if len(req.Contacts) == 0 {
		httputil.BadRequest(w, "contacts list is empty")
		return
	}

	c, err := h.store.GetCampaign(r.Context(), chi.URLParam(r, "campaignID"))
	if errors.Is(err, queue.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	contacts := make([]*domain.Contact, 0, len(req.Contacts))
	for _, rc := range req.Contacts {
		if rc.Email == "" {
			httputil.BadRequest(w, "contact with empty email")
			return
		}
		contacts = append(contacts, &domain.Contact{
			ID:        uuid.NewString(),
			Email:     rc.Email,
			FirstName: rc.FirstName,
			LastName:  rc.LastName,
		})
	}

	staged, err := h.stager.Stage(r.Context(), c, req.Subject, req.Body, contacts)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaign_id": c.ID, "staged": staged})
}

type launchRequest struct {
	Recipients []string `json:"recipients"`
}

// LaunchCampaign runs a scheduling pass over the campaign's staged
// messages. The body is optional; when present, `recipients` narrows the
// launch to those addresses. Launching an already-scheduled campaign is a
// conflict.
func (h *Handlers) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if r.ContentLength != 0 {
		if !httputil.Decode(w, r, &req) {
			return
		}
	}
	res, err := h.scheduler.Launch(r.Context(), chi.URLParam(r, "campaignID"), req.Recipients)
	if h.writeSchedulerError(w, err) {
		return
	}
	httputil.Accepted(w, res)
}

// RetryFailed re-schedules the campaign's retryable failures.
func (h *Handlers) RetryFailed(w http.ResponseWriter, r *http.Request) {
	res, err := h.scheduler.RetryFailed(r.Context(), chi.URLParam(r, "campaignID"))
	if h.writeSchedulerError(w, err) {
		return
	}
	httputil.Accepted(w, res)
}

func (h *Handlers) writeSchedulerError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	var conflict *scheduler.ConflictError
	switch {
	case errors.As(err, &conflict):
		httputil.Conflict(w, conflict.Reason)
	case errors.Is(err, queue.ErrNotFound):
		httputil.NotFound(w, "campaign not found")
	default:
		httputil.InternalError(w, err)
	}
	return true
}

// PauseCampaign halts dispatch for the campaign. Claimed messages finish;
// everything else stays queued until resume.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.CampaignPaused, func(c *domain.Campaign) (bool, string) {
		if !c.CanPause() {
			return false, "campaign is not sending"
		}
		return true, ""
	})
}

// ResumeCampaign lifts a pause.
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, domain.CampaignScheduled, func(c *domain.Campaign) (bool, string) {
		if c.Status != domain.CampaignPaused {
			return false, "campaign is not paused"
		}
		return true, ""
	})
}

func (h *Handlers) setStatus(w http.ResponseWriter, r *http.Request, to domain.CampaignStatus, check func(*domain.Campaign) (bool, string)) {
	id := chi.URLParam(r, "campaignID")
	c, err := h.store.GetCampaign(r.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if ok, reason := check(c); !ok {
		httputil.Conflict(w, reason)
		return
	}
	if err := h.store.SetCampaignStatus(r.Context(), id, to); err != nil {
		httputil.InternalError(w, err)
		return
	}
	c.Status = to
	httputil.OK(w, c)
}

// CampaignStats returns live per-status counts straight from the queue.
func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "campaignID")
	if _, err := h.store.GetCampaign(r.Context(), id); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	counts, err := h.store.CountByStatus(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaign_id": id, "counts": counts})
}

// SuppressionStatus looks up one address in the ledger.
func (h *Handlers) SuppressionStatus(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	c, err := h.ledger.Status(r.Context(), email)
	if errors.Is(err, suppression.ErrNotFound) {
		httputil.OK(w, map[string]any{"email": email, "suppressed": false})
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"email":      c.Email,
		"suppressed": c.IsSuppressed(),
		"reason":     c.SuppressionReason,
		"date":       c.SuppressionDate,
	})
}

// ListSlots exposes the rotation state for operational visibility.
func (h *Handlers) ListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.store.ListSlots(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"slots": slots})
}
