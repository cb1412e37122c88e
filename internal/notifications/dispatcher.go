package notifications

import (
	"context"
	"log"
	"strings"

	"github.com/fdg312/nutrition-engine/internal/mailer"
	"github.com/fdg312/nutrition-engine/internal/push"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/google/uuid"
)

const (
	ChannelLog   = "log"
	ChannelEmail = "email"
	ChannelPush  = "push"
)

const (
	EventMealReminder      = "meal_reminder"
	EventDeliveryCompleted = "delivery_completed"
)

type Logger interface {
	Printf(format string, v ...any)
}

// Message is an event plus what to tell the recipient.
type Message struct {
	Event   Event
	Subject string
	Body    string
	Data    map[string]string
}

// Dispatcher sends a message at most once per event key.
type Dispatcher struct {
	ledger   *Ledger
	patients storage.PatientsStorage
	channels []string
	mail     mailer.Sender
	push     push.Publisher
	logger   Logger
}

func NewDispatcher(ledger *Ledger, patients storage.PatientsStorage, channels []string) *Dispatcher {
	if len(channels) == 0 {
		channels = []string{ChannelLog}
	}
	return &Dispatcher{
		ledger:   ledger,
		patients: patients,
		channels: channels,
		logger:   log.Default(),
	}
}

func (d *Dispatcher) WithMailer(s mailer.Sender) *Dispatcher {
	d.mail = s
	return d
}

func (d *Dispatcher) WithPush(p push.Publisher) *Dispatcher {
	d.push = p
	return d
}

func (d *Dispatcher) WithLogger(l Logger) *Dispatcher {
	if l != nil {
		d.logger = l
	}
	return d
}

// Dispatch records the event and, only when it is new, sends it over every
// configured channel. Channel failures are logged; the event stays recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (bool, error) {
	recorded, err := d.ledger.TryRecord(ctx, msg.Event)
	if err != nil {
		return false, err
	}
	if !recorded {
		return false, nil
	}

	for _, ch := range d.channels {
		switch strings.ToLower(ch) {
		case ChannelLog:
			d.logger.Printf("INFO notifications: event=%s subject=%q", msg.Event, msg.Subject)
		case ChannelEmail:
			d.sendEmail(ctx, msg)
		case ChannelPush:
			if d.push == nil {
				continue
			}
			err := d.push.Publish(ctx, push.Notification{
				RecipientID: msg.Event.RecipientID,
				Title:       msg.Subject,
				Body:        msg.Body,
				Data:        msg.Data,
			})
			if err != nil {
				d.logger.Printf("WARN notifications: push failed event=%s: %v", msg.Event, err)
			}
		default:
			d.logger.Printf("WARN notifications: unknown channel %q", ch)
		}
	}
	return true, nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, msg Message) {
	if d.mail == nil || d.patients == nil {
		return
	}
	id, err := uuid.Parse(msg.Event.RecipientID)
	if err != nil {
		return
	}
	p, err := d.patients.GetPatient(ctx, id)
	if err != nil {
		d.logger.Printf("WARN notifications: recipient lookup failed event=%s: %v", msg.Event, err)
		return
	}
	if strings.TrimSpace(p.Email) == "" {
		return
	}
	if err := d.mail.Send(ctx, p.Email, msg.Subject, msg.Body); err != nil {
		d.logger.Printf("WARN notifications: email failed event=%s: %v", msg.Event, err)
	}
}
