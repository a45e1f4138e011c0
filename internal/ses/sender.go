// Package ses is the alternate transmission provider, built on the AWS
// SES v2 API. It mirrors the SparkPost client's contract: one message per
// call, returning the provider message id as the transmission id.
package ses

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/domain"
)

// sendAPI is the slice of the SES v2 client the sender uses.
type sendAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender submits messages through AWS SES.
type Sender struct {
	client sendAPI
}

// NewSender builds a sender with static credentials from configuration.
func NewSender(ctx context.Context, cfg config.SESConfig) (*Sender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Sender{client: sesv2.NewFromConfig(awsCfg)}, nil
}

// Send submits one message. Metadata rides along as message tags, which
// SES echoes back in its event payloads the way SparkPost echoes metadata.
func (s *Sender) Send(ctx context.Context, email *domain.OutboundEmail) (*domain.SendReceipt, error) {
	body := &types.Body{}
	if email.HTML != "" {
		body.Html = &types.Content{Data: &email.HTML}
	}
	if email.Text != "" {
		body.Text = &types.Content{Data: &email.Text}
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &email.From,
		Destination: &types.Destination{
			ToAddresses: []string{email.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &email.Subject},
				Body:    body,
			},
		},
		EmailTags: messageTags(email.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("ses send: %w", err)
	}

	receipt := &domain.SendReceipt{AcceptedAt: time.Now().UTC()}
	if out.MessageId != nil {
		receipt.TransmissionID = *out.MessageId
	}
	return receipt, nil
}

// messageTags converts metadata to SES tags in a stable key order.
func messageTags(metadata map[string]string) []types.MessageTag {
	if len(metadata) == 0 {
		return nil
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]types.MessageTag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, types.MessageTag{
			Name:  aws.String(k),
			Value: aws.String(metadata[k]),
		})
	}
	return tags
}
