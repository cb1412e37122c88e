package push

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/fdg312/nutrition-engine/internal/config"
)

type fakeSNS struct {
	inputs []*awssns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, in *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &awssns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSPublisher_Publish(t *testing.T) {
	client := &fakeSNS{}
	p := NewSNSPublisher(client, "arn:aws:sns:us-east-1:123:meals")

	err := p.Publish(context.Background(), Notification{
		RecipientID: "patient-1",
		Title:       "Lunch",
		Body:        "Time for lunch",
		Data:        map[string]string{"meal_id": "m1"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(client.inputs))
	}

	in := client.inputs[0]
	if aws.ToString(in.TopicArn) != "arn:aws:sns:us-east-1:123:meals" || aws.ToString(in.MessageStructure) != "json" {
		t.Fatalf("unexpected input %+v", in)
	}
	if aws.ToString(in.MessageAttributes["recipient_id"].StringValue) != "patient-1" {
		t.Fatalf("recipient attribute missing")
	}

	var msg map[string]string
	if err := json.Unmarshal([]byte(aws.ToString(in.Message)), &msg); err != nil {
		t.Fatalf("message is not a json object of strings: %v", err)
	}
	if msg["default"] != "Time for lunch" {
		t.Fatalf("unexpected default body %q", msg["default"])
	}
	var gcm struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(msg["GCM"]), &gcm); err != nil || gcm.Data["meal_id"] != "m1" {
		t.Fatalf("unexpected GCM payload %q (%v)", msg["GCM"], err)
	}
}

func TestSNSPublisher_Errors(t *testing.T) {
	p := NewSNSPublisher(&fakeSNS{err: errors.New("throttled")}, "arn")
	if err := p.Publish(context.Background(), Notification{RecipientID: "r"}); err == nil {
		t.Fatal("expected sns error to propagate")
	}
	if err := p.Publish(context.Background(), Notification{}); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}

func TestNewPublisherFromConfig(t *testing.T) {
	p, err := NewPublisherFromConfig(context.Background(), config.PushConfig{Mode: config.PushModeLocal}, nil)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if _, ok := p.(*LocalPublisher); !ok {
		t.Fatalf("expected LocalPublisher, got %T", p)
	}

	if _, err := NewPublisherFromConfig(context.Background(), config.PushConfig{Mode: config.PushModeSNS}, nil); err == nil {
		t.Fatal("expected error without topic")
	}
	if _, err := NewPublisherFromConfig(context.Background(), config.PushConfig{Mode: "fcm"}, nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
