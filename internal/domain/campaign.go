package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignStaged    CampaignStatus = "staged"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign groups queue messages and carries derived aggregate counters.
// The counters are recomputable from the email_queue table and must never
// be treated as authoritative on their own.
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Sender      string         `json:"sender" db:"sender"`
	Status      CampaignStatus `json:"status" db:"status"`
	EmailFormat string         `json:"email_format" db:"email_format"`

	// Derived stats (recomputed from the queue, see Store.RefreshCampaignCounters)
	QueuedCount  int `json:"queued_count" db:"queued_count"`
	SentCount    int `json:"sent_count" db:"sent_count"`
	FailedCount  int `json:"failed_count" db:"failed_count"`
	BouncedCount int `json:"bounced_count" db:"bounced_count"`
	RepliedCount int `json:"replied_count" db:"replied_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignCancelled
}

// CanLaunch reports whether a scheduling pass may run against the campaign.
// A campaign that has already been scheduled must be re-staged before a
// second pass; this is what makes relaunch a state-conflict error rather
// than a double-schedule.
func (c *Campaign) CanLaunch() (bool, string) {
	switch c.Status {
	case CampaignStaged:
		return true, ""
	case CampaignScheduled, CampaignSending:
		return false, "campaign is already scheduled; re-stage it before launching again"
	case CampaignPaused:
		return false, "campaign is paused"
	default:
		return false, "campaign has no staged messages to schedule"
	}
}

// CanPause reports whether the campaign can be paused.
func (c *Campaign) CanPause() bool {
	return c.Status == CampaignScheduled || c.Status == CampaignSending
}
