// Package queues publishes extraction-completion events for downstream
// code-generation consumers.
package queues

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ggstvfer/psd-covert-sub000/logging"
	"github.com/ggstvfer/psd-covert-sub000/models"
)

// CompletionNotifier is advisory: a failed notification never fails the
// complete call that produced it.
type CompletionNotifier interface {
	NotifyCompleted(ctx context.Context, evt models.UploadCompletedEvent) error
}

type SqsCompletionNotifierImpl struct {
	client   *sqs.Client
	queueUrl string

	logger logging.Logger
}

func NewSqsCompletionNotifierImpl(client *sqs.Client, queueUrl string, l logging.Logger) *SqsCompletionNotifierImpl {
	return &SqsCompletionNotifierImpl{
		client:   client,
		queueUrl: queueUrl,
		logger:   l,
	}
}

func (n *SqsCompletionNotifierImpl) NotifyCompleted(ctx context.Context, evt models.UploadCompletedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueUrl),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		n.logger.Error("failed to publish completion event", "session_id", evt.SessionId, "error", err)
		return err
	}

	n.logger.Info("published completion event", "session_id", evt.SessionId, "layer_count", evt.LayerCount)
	return nil
}

// NullCompletionNotifier drops events. Used in tests and when no queue
// is configured.
type NullCompletionNotifier struct{}

func NewNullCompletionNotifier() *NullCompletionNotifier {
	return &NullCompletionNotifier{}
}

func (n *NullCompletionNotifier) NotifyCompleted(ctx context.Context, evt models.UploadCompletedEvent) error {
	return nil
}
