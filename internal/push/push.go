// Package push delivers short notifications to patients' devices.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/fdg312/nutrition-engine/internal/config"
)

// Notification is one push message for a recipient.
type Notification struct {
	RecipientID string
	Title       string
	Body        string
	Data        map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// snsAPI is the subset of the SNS client used here.
type snsAPI interface {
	Publish(ctx context.Context, in *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// SNSPublisher publishes to a topic; subscriptions filter on the recipient_id
// message attribute.
type SNSPublisher struct {
	client   snsAPI
	topicARN string
}

func NewSNSPublisher(client snsAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) Publish(ctx context.Context, n Notification) error {
	if strings.TrimSpace(n.RecipientID) == "" {
		return errors.New("push: recipient is required")
	}

	payload := map[string]any{
		"default": n.Body,
		"GCM": map[string]any{
			"notification": map[string]string{
				"title": n.Title,
				"body":  n.Body,
			},
			"data": n.Data,
		},
	}
	// SNS expects every per-protocol value as a JSON string.
	gcm, err := json.Marshal(payload["GCM"])
	if err != nil {
		return fmt.Errorf("push: encode: %w", err)
	}
	payload["GCM"] = string(gcm)
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("push: encode: %w", err)
	}

	_, err = p.client.Publish(ctx, &awssns.PublishInput{
		TopicArn:         aws.String(p.topicARN),
		MessageStructure: aws.String("json"),
		Message:          aws.String(string(raw)),
		Subject:          aws.String(n.Title),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipient_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.RecipientID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("push: sns publish: %w", err)
	}
	return nil
}

// LocalPublisher logs notifications and keeps them in memory.
type LocalPublisher struct {
	logger *log.Logger

	mu   sync.Mutex
	sent []Notification
}

func NewLocalPublisher(logger *log.Logger) *LocalPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LocalPublisher{logger: logger}
}

func (p *LocalPublisher) Publish(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.sent = append(p.sent, n)
	p.mu.Unlock()

	p.logger.Printf("INFO push.local: recipient=%s title=%q", n.RecipientID, n.Title)
	return nil
}

func (p *LocalPublisher) Sent() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.sent...)
}

// NewPublisherFromConfig builds the publisher for PUSH_MODE.
func NewPublisherFromConfig(ctx context.Context, cfg config.PushConfig, logger *log.Logger) (Publisher, error) {
	switch cfg.Mode {
	case "", config.PushModeLocal:
		return NewLocalPublisher(logger), nil
	case config.PushModeSNS:
		if strings.TrimSpace(cfg.SNSTopicARN) == "" {
			return nil, errors.New("SNS_TOPIC_ARN is required for PUSH_MODE=sns")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("push: load aws config: %w", err)
		}
		return NewSNSPublisher(awssns.NewFromConfig(awsCfg), cfg.SNSTopicARN), nil
	default:
		return nil, fmt.Errorf("unsupported PUSH_MODE=%q", cfg.Mode)
	}
}
