// Package events ingests provider webhook batches: bounces, spam
// complaints, unsubscribes, deliveries, and inbound replies. Processing
// is idempotent; a redelivered batch changes nothing.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed set of event types the engine acts on. Raw provider
// type strings are mapped here once, at the edge; everything downstream
// switches on Kind.
type Kind string

const (
	KindBounce      Kind = "bounce"
	KindComplaint   Kind = "spam_complaint"
	KindUnsubscribe Kind = "unsubscribe"
	KindDelivery    Kind = "delivery"
	KindReply       Kind = "reply"
	KindUnknown     Kind = "unknown"
)

// Event is one normalized inbound event.
type Event struct {
	ID             string
	Kind           Kind
	RawType        string
	TransmissionID string
	CampaignID     string
	MessageID      string
	ContactID      string
	Recipient      string
	Subject        string
	OccurredAt     time.Time
}

// envelope mirrors the SparkPost webhook wire format: an array of
// single-key "msys" wrappers, each holding one event class.
type envelope struct {
	Msys struct {
		MessageEvent *rawEvent `json:"message_event"`
		TrackEvent   *rawEvent `json:"track_event"`
		UnsubEvent   *rawEvent `json:"unsubscribe_event"`
		RelayEvent   *rawEvent `json:"relay_message"`
	} `json:"msys"`
}

type rawEvent struct {
	Type           string            `json:"type"`
	EventID        string            `json:"event_id"`
	TransmissionID string            `json:"transmission_id"`
	CampaignID     string            `json:"campaign_id"`
	RcptTo         string            `json:"rcpt_to"`
	Timestamp      json.Number       `json:"timestamp"`
	RcptMeta       map[string]string `json:"rcpt_meta"`
	Content        *relayContent     `json:"content"`
}

type relayContent struct {
	Subject string `json:"subject"`
}

// Normalize parses a webhook payload into events. Events of types outside
// the known set come back as KindUnknown so the caller can count and drop
// them; a malformed payload is an error for the whole batch.
func Normalize(payload []byte) ([]Event, error) {
	var envs []envelope
	if err := json.Unmarshal(payload, &envs); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	out := make([]Event, 0, len(envs))
	for _, env := range envs {
		raw := env.Msys.MessageEvent
		if raw == nil {
			raw = env.Msys.TrackEvent
		}
		if raw == nil {
			raw = env.Msys.UnsubEvent
		}
		if raw == nil {
			raw = env.Msys.RelayEvent
		}
		if raw == nil {
			continue
		}
		out = append(out, normalizeOne(raw, env.Msys.RelayEvent != nil))
	}
	return out, nil
}

func normalizeOne(raw *rawEvent, isRelay bool) Event {
	e := Event{
		Kind:           classify(raw.Type, isRelay),
		RawType:        raw.Type,
		TransmissionID: raw.TransmissionID,
		CampaignID:     extractCampaignID(raw.CampaignID),
		Recipient:      strings.ToLower(strings.TrimSpace(raw.RcptTo)),
		OccurredAt:     parseTimestamp(raw.Timestamp),
	}
	if raw.RcptMeta != nil {
		e.MessageID = raw.RcptMeta["message_id"]
		e.ContactID = raw.RcptMeta["contact_id"]
	}
	if raw.Content != nil {
		e.Subject = raw.Content.Subject
	}

	e.ID = raw.EventID
	if e.ID == "" {
		e.ID = derivedID(e)
	}
	return e
}

func classify(rawType string, isRelay bool) Kind {
	if isRelay {
		return KindReply
	}
	switch rawType {
	case "bounce", "out_of_band":
		return KindBounce
	case "spam_complaint":
		return KindComplaint
	case "list_unsubscribe", "link_unsubscribe":
		return KindUnsubscribe
	case "delivery":
		return KindDelivery
	default:
		return KindUnknown
	}
}

// derivedID builds a stable event id for providers that omit one, so
// redelivery of the same event still dedupes.
func derivedID(e Event) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		e.RawType, e.CampaignID, e.Recipient, e.OccurredAt.UTC().Format(time.RFC3339),
	}, "|")))
	return "derived-" + hex.EncodeToString(h[:16])
}

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// extractCampaignID recovers the campaign uuid from the provider-side
// campaign label, which is written as "<name> - <uuid>" at send time.
// A bare uuid passes through; anything else comes back empty.
func extractCampaignID(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	if m := uuidPattern.FindString(label); m != "" {
		return strings.ToLower(m)
	}
	return ""
}

func parseTimestamp(ts json.Number) time.Time {
	if ts == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(ts.String(), 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	if f, err := ts.Float64(); err == nil {
		return time.Unix(int64(f), 0).UTC()
	}
	return time.Time{}
}
