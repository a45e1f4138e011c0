package sparkpost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/domain"
)

func testEmail() *domain.OutboundEmail {
	return &domain.OutboundEmail{
		MessageID:  "m-1",
		CampaignID: "camp-1",
		ContactID:  "contact-1",
		To:         "jane@example.com",
		From:       "Alpha <hello@alpha-mail.com>",
		Subject:    "Hello",
		HTML:       "<p>Hi</p>",
		Metadata: map[string]string{
			"message_id":  "m-1",
			"campaign_id": "camp-1",
		},
	}
}

func newTestClient(url string) *Client {
	return NewClient(config.SparkPostConfig{
		APIKey:         "test-key",
		BaseURL:        url,
		TimeoutSeconds: 5,
	})
}

func TestSendSubmitsTransmission(t *testing.T) {
	var got transmission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transmissions", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"id":                        "tx-123",
				"total_accepted_recipients": 1,
			},
		})
	}))
	defer srv.Close()

	receipt, err := newTestClient(srv.URL).Send(context.Background(), testEmail())
	require.NoError(t, err)

	assert.Equal(t, "tx-123", receipt.TransmissionID)
	assert.False(t, receipt.AcceptedAt.IsZero())

	require.Len(t, got.Recipients, 1)
	assert.Equal(t, "jane@example.com", got.Recipients[0].Address.Email)
	assert.Equal(t, "hello@alpha-mail.com", got.Content.From.Email)
	assert.Equal(t, "Alpha", got.Content.From.Name)
	assert.Equal(t, "m-1", got.Metadata["message_id"])
	require.NotNil(t, got.Options)
	assert.False(t, got.Options.ClickTracking)
	assert.False(t, got.Options.OpenTracking)
}

func TestSend4xxReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"invalid recipient","description":"bad address"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Send(context.Background(), testEmail())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "invalid recipient")
}

func TestSendRetriesTransient5xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{"id": "tx-retry", "total_accepted_recipients": 1},
		})
	}))
	defer srv.Close()

	receipt, err := newTestClient(srv.URL).Send(context.Background(), testEmail())
	require.NoError(t, err)
	assert.Equal(t, "tx-retry", receipt.TransmissionID)
	assert.Equal(t, 2, calls)
}

func TestSendRejectedRecipient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{
				"id":                        "tx-1",
				"total_accepted_recipients": 0,
				"total_rejected_recipients": 1,
			},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Send(context.Background(), testEmail())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "rejected")
}

func TestSplitFrom(t *testing.T) {
	e, n := splitFrom("Alpha <hello@alpha-mail.com>")
	assert.Equal(t, "hello@alpha-mail.com", e)
	assert.Equal(t, "Alpha", n)

	e, n = splitFrom("bare@alpha-mail.com")
	assert.Equal(t, "bare@alpha-mail.com", e)
	assert.Equal(t, "", n)
}
