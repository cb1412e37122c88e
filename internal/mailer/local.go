package mailer

import (
	"context"
	"log"
	"sync"
)

// Message is a mail kept by LocalSender.
type Message struct {
	To      string
	Subject string
	Body    string
}

// LocalSender logs messages instead of sending them and keeps them for inspection.
type LocalSender struct {
	logger *log.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLocalSender(logger *log.Logger) *LocalSender {
	if logger == nil {
		logger = log.Default()
	}
	return &LocalSender{logger: logger}
}

func (s *LocalSender) Send(ctx context.Context, to, subject, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, Message{To: to, Subject: subject, Body: textBody})
	s.mu.Unlock()

	s.logger.Printf("INFO mailer.local: to=%s subject=%q", to, subject)
	return nil
}

// Sent returns a copy of everything sent so far.
func (s *LocalSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
