package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/queue"
)

func TestReplyDetectorPrefersThreadCorrelation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The In-Reply-To header names our transmission id, so the detector
	// must look the message up by it and never fall back to the address.
	mock.ExpectQuery(`FROM email_queue`).
		WithArgs("tx-1").
		WillReturnRows(sentMessageRow("m-1"))
	mock.ExpectExec(`UPDATE email_queue`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	src := staticSource{msgs: []InboundMessage{{
		From:      "someone-else@example.com",
		Subject:   "Re: Hi",
		InReplyTo: "<tx-1@mail.alpha-mail.com>",
	}}}
	d := NewReplyDetector(src, queue.NewStore(db))

	n, err := d.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplyDetectorFallsBackToAddress(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Unknown thread reference: the address lookup takes over.
	mock.ExpectQuery(`FROM email_queue`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows(queueCols))
	mock.ExpectQuery(`FROM email_queue`).
		WithArgs("jane@example.com", "sent").
		WillReturnRows(sentMessageRow("m-1"))
	mock.ExpectExec(`UPDATE email_queue`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE campaigns`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	src := staticSource{msgs: []InboundMessage{{
		From:      "jane@example.com",
		Subject:   "Re: Hi",
		InReplyTo: "<abc123@gmail.com>",
	}}}
	d := NewReplyDetector(src, queue.NewStore(db))

	n, err := d.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPollAdvancesSinceCursor(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := &recordingSource{}
	d := NewReplyDetector(rec, queue.NewStore(db))
	polledAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return polledAt }

	_, err = d.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, rec.since[0].IsZero(), "first poll reads the whole mailbox")

	_, err = d.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, polledAt, rec.since[1], "second poll resumes from the first")
}

func TestThreadRefs(t *testing.T) {
	refs := threadRefs(
		"<tx-9@mail.alpha-mail.com>",
		"<tx-9@mail.alpha-mail.com> <other@gmail.com>",
	)
	assert.Equal(t, []string{"tx-9", "other"}, refs)

	assert.Empty(t, threadRefs("", ""))
}

func TestMaildirSourceFetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "new"), 0o755))

	raw := "From: Jane Doe <jane@example.com>\r\n" +
		"Subject: Re: Hi\r\n" +
		"In-Reply-To: <tx-1@mail.alpha-mail.com>\r\n" +
		"Date: Fri, 01 Mar 2024 12:00:00 +0000\r\n" +
		"\r\n" +
		"Sounds good!\r\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new", "1709294400.msg"), []byte(raw), 0o644))

	src := NewMaildirSource(dir)
	msgs, err := src.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "jane@example.com", msgs[0].From)
	assert.Equal(t, "Re: Hi", msgs[0].Subject)
	assert.Equal(t, "<tx-1@mail.alpha-mail.com>", msgs[0].InReplyTo)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), msgs[0].ReceivedAt.UTC())

	// Nothing new after the cursor moves past the delivery.
	msgs, err = src.Fetch(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

type recordingSource struct {
	since []time.Time
}

func (r *recordingSource) Fetch(ctx context.Context, since time.Time) ([]InboundMessage, error) {
	r.since = append(r.since, since)
	return nil, nil
}
