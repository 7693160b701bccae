// Package notify publishes run outcome notifications. Production publishes
// to an SNS topic; local runs log, and tests capture in memory.
package notify

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	perrors "github.com/dehpipe/dehpipe/internal/errors"
)

// Notifier publishes a subject/body pair to the configured channel.
type Notifier interface {
	Publish(ctx context.Context, subject, body string) error
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes to an SNS topic.
type SNSNotifier struct {
	client   snsAPI
	topicARN string
}

// NewSNSNotifier builds a notifier using the default AWS configuration chain.
func NewSNSNotifier(ctx context.Context, region, topicARN string) (*SNSNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, perrors.NewNotifyError("load aws config", err)
	}
	return &SNSNotifier{client: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

// NewSNSNotifierWithClient is for tests that inject a fake client.
func NewSNSNotifierWithClient(client snsAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Publish(ctx context.Context, subject, body string) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(body),
	})
	if err != nil {
		return perrors.NewNotifyError(
			fmt.Sprintf("publish to %s", n.topicARN), err)
	}
	return nil
}

// LogNotifier writes notifications to the process log. Used for local runs
// where no topic is configured.
type LogNotifier struct{}

func (LogNotifier) Publish(ctx context.Context, subject, body string) error {
	log.Printf("notify: %s: %s", subject, body)
	return nil
}

// Message is a captured notification.
type Message struct {
	Subject string
	Body    string
}

// MemoryNotifier records published messages for assertions in tests.
type MemoryNotifier struct {
	mu       sync.Mutex
	messages []Message
	// FailWith, when set, makes Publish return it instead of recording.
	FailWith error
}

func (m *MemoryNotifier) Publish(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.messages = append(m.messages, Message{Subject: subject, Body: body})
	return nil
}

// Messages returns a copy of everything published so far.
func (m *MemoryNotifier) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
