// Package sparkpost sends queued messages through the SparkPost
// transmissions API. One message maps to one single-recipient
// transmission, so the returned transmission id identifies the message in
// later webhook events.
package sparkpost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/httpretry"
)

// Client is a SparkPost transmissions API client.
type Client struct {
	baseURL string
	apiKey  string
	replyTo string
	http    httpretry.Doer
}

// NewClient builds a client from configuration. Requests retry on 429 and
// 5xx before surfacing an error to the worker.
func NewClient(cfg config.SparkPostConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		replyTo: cfg.ReplyTo,
		http:    httpretry.New(&http.Client{Timeout: cfg.Timeout()}, 3),
	}
}

// Send submits one message as a transmission. Click and open tracking are
// off: rewritten links and tracking pixels hurt deliverability for this
// kind of traffic and the engine correlates events by transmission id
// instead.
func (c *Client) Send(ctx context.Context, email *domain.OutboundEmail) (*domain.SendReceipt, error) {
	fromEmail, fromName := splitFrom(email.From)

	payload := transmission{
		CampaignID: email.CampaignLabel,
		Recipients: []recipient{{Address: address{Email: email.To}}},
		Content: content{
			From:    fromAddress{Email: fromEmail, Name: fromName},
			Subject: email.Subject,
			HTML:    email.HTML,
			Text:    email.Text,
			ReplyTo: c.replyTo,
		},
		Metadata: email.Metadata,
		Options: &options{
			ClickTracking: false,
			OpenTracking:  false,
			Transactional: false,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode transmission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/transmissions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build transmission request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit transmission: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read transmission response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    apiErrorMessage(respBody),
		}
	}

	var tr transmissionResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, fmt.Errorf("decode transmission response: %w", err)
	}
	if tr.Results.TotalAcceptedRecipients == 0 {
		// The API answered 200 but took nobody. Surface it as a 4xx so
		// the worker classifies it terminal.
		return nil, &APIError{
			StatusCode: http.StatusBadRequest,
			Message:    "recipient rejected by provider",
		}
	}

	return &domain.SendReceipt{
		TransmissionID: tr.Results.ID,
		AcceptedAt:     time.Now().UTC(),
	}, nil
}

func apiErrorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && len(er.Errors) > 0 {
		msg := er.Errors[0].Message
		if er.Errors[0].Description != "" {
			msg += ": " + er.Errors[0].Description
		}
		return msg
	}
	return strings.TrimSpace(string(body))
}

// splitFrom parses "Display Name <local@domain>" into its parts, falling
// back to the raw string as the address.
func splitFrom(from string) (email, name string) {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address, addr.Name
	}
	return from, ""
}
