// Package aws wraps the SES and SNS clients used to notify applicants of
// appraisal decisions.
package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

var ErrNoRecipient = errors.New("no recipient")

// SESAPI is the subset of the SES client the mailer calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Email is one outgoing message. HTML is optional.
type Email struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

type SESClient struct {
	api  SESAPI
	from string
}

// LoadConfig resolves AWS credentials from the default chain for region.
func LoadConfig(ctx context.Context, region string) (awssdk.Config, error) {
	return config.LoadDefaultConfig(ctx, config.WithRegion(region))
}

func NewSESClient(cfg awssdk.Config, from string) *SESClient {
	return &SESClient{api: ses.NewFromConfig(cfg), from: from}
}

func NewSESClientWithAPI(api SESAPI, from string) *SESClient {
	return &SESClient{api: api, from: from}
}

// Send delivers e and returns the SES message id.
func (s *SESClient) Send(ctx context.Context, e Email) (string, error) {
	if len(e.To) == 0 {
		return "", ErrNoRecipient
	}

	body := &types.Body{Text: &types.Content{Data: awssdk.String(e.Text), Charset: awssdk.String("UTF-8")}}
	if e.HTML != "" {
		body.Html = &types.Content{Data: awssdk.String(e.HTML), Charset: awssdk.String("UTF-8")}
	}

	out, err := s.api.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: e.To},
		Message: &types.Message{
			Subject: &types.Content{Data: awssdk.String(e.Subject), Charset: awssdk.String("UTF-8")},
			Body:    body,
		},
		Source: awssdk.String(s.from),
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return awssdk.ToString(out.MessageId), nil
}
