// Package queue publishes firing messages to the SQS queue the Timer Service
// targets, so a firing can be triggered by hand without waiting for the
// schedule.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"occasions/internal/types"
)

// SQSSender abstracts SendMessage for testability. Production code passes
// *sqs.Client.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// FiringPublisher sends FiringMessage bodies identical to the ones the Timer
// Service delivers.
type FiringPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewFiringPublisher creates a publisher for the given queue URL.
func NewFiringPublisher(client SQSSender, queueURL string, logger *slog.Logger) *FiringPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FiringPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish enqueues an occasion firing for subjectID and returns the SQS
// message id. The reason is attached as a message attribute for tracing;
// the worker ignores it.
func (p *FiringPublisher) Publish(ctx context.Context, subjectID, reason string) (string, error) {
	if subjectID == "" {
		return "", types.NewAppError(types.ErrCodeValidationMalformedFiring, "subject id is required", nil)
	}
	if p.queueURL == "" {
		return "", fmt.Errorf("queue: firing queue URL is not configured")
	}

	body, err := json.Marshal(types.FiringMessage{
		SubjectID: subjectID,
		Type:      types.FiringTypeOccasion,
	})
	if err != nil {
		return "", fmt.Errorf("queue: failed to marshal FiringMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if reason != "" {
		input.MessageAttributes = map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		}
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("queue: failed to send FiringMessage to %s: %w", p.queueURL, err)
	}

	messageID := aws.ToString(out.MessageId)
	p.logger.InfoContext(ctx, "firing message sent",
		"queue_url", p.queueURL,
		"subject_id", subjectID,
		"message_id", messageID,
		"reason", reason,
	)
	return messageID, nil
}
