package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/fdg312/nutrition-engine/internal/config"
)

func TestNewSenderFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
		local   bool
	}{
		{"default local", config.Config{}, false, true},
		{"explicit local", config.Config{EmailSenderMode: "LOCAL"}, false, true},
		{"smtp ok", config.Config{EmailSenderMode: "smtp", SMTPHost: "mail.local", SMTPPort: 25, SMTPFrom: "Bot <bot@example.com>"}, false, false},
		{"smtp without host", config.Config{EmailSenderMode: "smtp", SMTPPort: 25, SMTPFrom: "bot@example.com"}, true, false},
		{"smtp user without password", config.Config{EmailSenderMode: "smtp", SMTPHost: "h", SMTPPort: 25, SMTPFrom: "bot@example.com", SMTPUsername: "u"}, true, false},
		{"smtp bad from", config.Config{EmailSenderMode: "smtp", SMTPHost: "h", SMTPPort: 25, SMTPFrom: "not an address"}, true, false},
		{"unknown", config.Config{EmailSenderMode: "pigeon"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSenderFromConfig(&tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := s.(*LocalSender); ok != tt.local {
				t.Fatalf("local sender = %v, want %v", ok, tt.local)
			}
		})
	}
}

func TestLocalSender_KeepsMessages(t *testing.T) {
	s := NewLocalSender(nil)
	if err := s.Send(context.Background(), "ana@example.com", "Reminder", "eat lunch"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sent := s.Sent()
	if len(sent) != 1 || sent[0].To != "ana@example.com" || sent[0].Body != "eat lunch" {
		t.Fatalf("unexpected messages %+v", sent)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, "x@example.com", "s", "b"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestBuildMessage_StripsHeaderInjection(t *testing.T) {
	msg := buildMessage("bot@example.com", "ana@example.com\r\nBcc: evil@example.com", "Hi\r\nX-Injected: 1", "body")

	if strings.Contains(msg, "\r\nBcc:") || strings.Contains(msg, "\r\nX-Injected:") {
		t.Fatalf("header injection not stripped:\n%s", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nbody") {
		t.Fatalf("body not separated from headers:\n%q", msg)
	}
}
