package scheduler

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/render"
)

func TestStageUpsertsContactsBeforeQueueRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The address already has a contact row (a webhook suppressed it long
	// ago); staging must pick up that row's id, not mint a new one.
	mock.ExpectBegin()
	upsert := mock.ExpectPrepare(`INSERT INTO contacts`)
	upsert.ExpectQuery().
		WithArgs("c-new", "jane@example.com", "Jane", "Doe").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c-existing"))
	mock.ExpectCommit()

	mock.ExpectBegin()
	insert := mock.ExpectPrepare(`INSERT INTO email_queue`)
	insert.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "camp-1", "c-existing", "jane@example.com", "",
			"Hello Jane", "<p>Hi Jane</p>", 42, string(domain.MessageStaged), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec(`UPDATE campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	st := NewStager(queue.NewStore(db), render.New())
	st.jitter = func() int { return 42 }

	c := &domain.Campaign{ID: "camp-1", Name: "Launch Test", Status: domain.CampaignDraft}
	n, err := st.Stage(context.Background(), c,
		"Hello {{ first_name }}", "<p>Hi {{ first_name }}</p>",
		[]*domain.Contact{{ID: "c-new", Email: " Jane@Example.com", FirstName: "Jane", LastName: "Doe"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStageEmptyContactList(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewStager(queue.NewStore(db), render.New())
	_, err = st.Stage(context.Background(), &domain.Campaign{ID: "camp-1"}, "s", "b", nil)
	assert.Error(t, err)
}
