package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/render"
	"github.com/ignite/campaign-engine/internal/scheduler"
	"github.com/ignite/campaign-engine/internal/suppression"
)

var campaignCols = []string{
	"id", "name", "sender", "status", "email_format",
	"queued_count", "sent_count", "failed_count", "bounced_count", "replied_count",
	"created_at", "updated_at",
}

func campaignRow(id, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(campaignCols).
		AddRow(id, "Spring Sale", "sender", status, "html", 0, 0, 0, 0, 0, now, now)
}

func newTestServer(t *testing.T) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := queue.NewStore(db)
	ledger := suppression.NewLedger(db)
	rules := scheduler.Rules{Loc: time.UTC, StartHour: 9, EndHour: 17, MinSpacing: 210 * time.Second}
	sched := scheduler.New(store, ledger, db, nil, rules)
	stager := scheduler.NewStager(store, render.New())
	processor := events.NewProcessor(db, store, ledger)

	h := NewHandlers(store, ledger, sched, stager, processor)
	r := chi.NewRouter()
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, mock
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateCampaign(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectExec(`INSERT INTO campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := http.Post(srv.URL+"/api/campaigns", "application/json",
		strings.NewReader(`{"name":"Spring Sale","sender":"ops"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCampaignMissingName(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/campaigns", "application/json",
		strings.NewReader(`{"sender":"ops"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLaunchAlreadyScheduledReturns409(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(`pg_try_advisory_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM campaigns`).
		WillReturnRows(campaignRow("camp-1", "scheduled"))
	mock.ExpectRollback()
	mock.ExpectExec(`pg_advisory_unlock`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	resp, err := http.Post(srv.URL+"/api/campaigns/camp-1/launch", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPauseRequiresSendingState(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(`FROM campaigns`).
		WillReturnRows(campaignRow("camp-1", "draft"))

	resp, err := http.Post(srv.URL+"/api/campaigns/camp-1/pause", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPauseScheduledCampaign(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(`FROM campaigns`).
		WillReturnRows(campaignRow("camp-1", "scheduled"))
	mock.ExpectExec(`UPDATE campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := http.Post(srv.URL+"/api/campaigns/camp-1/pause", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSuppressionStatusUnknownAddress(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(`FROM contacts`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	resp, err := http.Get(srv.URL + "/api/suppression/nobody@example.com")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhookMalformedPayload(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/webhooks/sparkpost", "application/json",
		strings.NewReader(`{"not":"an array"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookDuplicateBatchIsAccepted(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectExec(`INSERT INTO webhook_events`).
		WillReturnResult(sqlmock.NewResult(0, 0)) // conflict: already seen

	payload := `[{"msys":{"message_event":{
		"type":"bounce","event_id":"evt-1","rcpt_to":"jane@example.com","timestamp":"1704103200"
	}}}]`
	resp, err := http.Post(srv.URL+"/api/webhooks/sparkpost", "application/json",
		strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
