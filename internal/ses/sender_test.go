package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/domain"
)

type fakeSendAPI struct {
	in  *sesv2.SendEmailInput
	out *sesv2.SendEmailOutput
	err error
}

func (f *fakeSendAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = params
	return f.out, f.err
}

func TestSendBuildsSESInput(t *testing.T) {
	id := "ses-msg-1"
	fake := &fakeSendAPI{out: &sesv2.SendEmailOutput{MessageId: &id}}
	s := &Sender{client: fake}

	receipt, err := s.Send(context.Background(), &domain.OutboundEmail{
		To:      "jane@example.com",
		From:    "hello@alpha-mail.com",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
		Metadata: map[string]string{
			"message_id":  "m-1",
			"campaign_id": "camp-1",
			"contact_id":  "contact-1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", receipt.TransmissionID)

	require.NotNil(t, fake.in)
	assert.Equal(t, []string{"jane@example.com"}, fake.in.Destination.ToAddresses)
	assert.Equal(t, "hello@alpha-mail.com", *fake.in.FromEmailAddress)
	assert.Equal(t, "Hello", *fake.in.Content.Simple.Subject.Data)
	assert.Equal(t, "<p>Hi</p>", *fake.in.Content.Simple.Body.Html.Data)
	assert.Nil(t, fake.in.Content.Simple.Body.Text)

	// Metadata becomes message tags, sorted by key, so SES event payloads
	// can be correlated back to the queue row.
	require.Len(t, fake.in.EmailTags, 3)
	assert.Equal(t, "campaign_id", *fake.in.EmailTags[0].Name)
	assert.Equal(t, "camp-1", *fake.in.EmailTags[0].Value)
	assert.Equal(t, "contact_id", *fake.in.EmailTags[1].Name)
	assert.Equal(t, "message_id", *fake.in.EmailTags[2].Name)
	assert.Equal(t, "m-1", *fake.in.EmailTags[2].Value)
}

func TestSendPropagatesError(t *testing.T) {
	fake := &fakeSendAPI{err: errors.New("throttled")}
	s := &Sender{client: fake}

	_, err := s.Send(context.Background(), &domain.OutboundEmail{To: "x@example.com"})
	assert.ErrorContains(t, err, "throttled")
}
