package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

// Message is one rendered email ready for transport.
type Message struct {
	To      string
	Subject string
	HTML    string
	// JobID tags the outbound message so a resent job is traceable to the
	// same delivery attempt chain.
	JobID string
}

// Sender is the mail transport. Send returns the provider message id.
// Errors are classified: a DeliveryPermanentError means the job must not
// be retried, a TransientInfraError means it should.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SESSender sends through AWS SES v2.
type SESSender struct {
	client      *sesv2.Client
	fromAddress string
	fromName    string
	log         *logger.Logger
}

// NewSESSender builds an SES sender with static credentials. Returns an
// error when the AWS config cannot be assembled; missing credentials are
// the caller's cue to use NewLogSender instead.
func NewSESSender(ctx context.Context, region, accessKey, secretKey, fromAddress, fromName string) (*SESSender, error) {
	if region == "" {
		region = "us-east-1"
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("ses credentials not configured")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESSender{
		client:      sesv2.NewFromConfig(cfg),
		fromAddress: fromAddress,
		fromName:    fromName,
		log:         logger.With("ses-sender"),
	}, nil
}

func (s *SESSender) Send(ctx context.Context, msg Message) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("job_id"), Value: aws.String(msg.JobID)},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", classify(err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.log.Info("sent", "to", msg.To, "message_id", messageID, "job_id", msg.JobID)
	return messageID, nil
}

// classify sorts an SES failure into the retry taxonomy. Rejections and
// malformed requests will fail identically on every retry; throttling and
// service errors will not.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "MessageRejected", "BadRequestException", "NotFoundException", "AccountSuspendedException":
			return &domain.DeliveryPermanentError{Reason: apiErr.ErrorMessage()}
		case "TooManyRequestsException", "LimitExceededException", "SendingPausedException", "InternalServiceErrorException":
			return &domain.TransientInfraError{Op: "ses.Send", Err: err}
		}
		if strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "address is not verified") {
			return &domain.DeliveryPermanentError{Reason: apiErr.ErrorMessage()}
		}
	}
	return &domain.TransientInfraError{Op: "ses.Send", Err: err}
}

// LogSender is the no-credentials fallback: it logs what would have been
// sent and reports success. Useful in development and tests.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates the fallback sender.
func NewLogSender() *LogSender {
	return &LogSender{log: logger.With("log-sender")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	s.log.Info("email (log only)", "to", msg.To, "subject", msg.Subject, "job_id", msg.JobID)
	return "log-" + msg.JobID, nil
}
