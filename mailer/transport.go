package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// SMTPSender delivers through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	body, err := Render(email)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	if err := smtp.SendMail(addr, auth, s.From, email.To, buildMessage(s.From, email, body)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, email Email, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(email.To, ", ") + "\r\n")
	b.WriteString("Subject: " + email.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// Publisher is satisfied by config.TopicPublisher.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// PubSubSender hands rendered mail to a relay subscribed to a Pub/Sub topic.
type PubSubSender struct {
	Publisher Publisher
	From      string
}

type relayMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

func (s *PubSubSender) Send(ctx context.Context, email Email) error {
	body, err := Render(email)
	if err != nil {
		return err
	}
	data, err := json.Marshal(relayMessage{From: s.From, To: email.To, Subject: email.Subject, Body: body})
	if err != nil {
		return err
	}
	if _, err := s.Publisher.Publish(ctx, data, map[string]string{"template": email.Template}); err != nil {
		return fmt.Errorf("publish mail: %w", err)
	}
	return nil
}

// LogSender writes mail to the log instead of sending it. Used in development.
type LogSender struct {
	Logger *logrus.Logger
}

func (s *LogSender) Send(ctx context.Context, email Email) error {
	body, err := Render(email)
	if err != nil {
		return err
	}
	s.Logger.WithFields(logrus.Fields{
		"field":    "LogSender",
		"to":       email.To,
		"subject":  email.Subject,
		"template": email.Template,
	}).Info(body)
	return nil
}

// RateLimitedSender spaces out sends so a backlog does not trip provider limits.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter
}

func NewRateLimitedSender(next Sender, perSecond float64, burst int) *RateLimitedSender {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedSender{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (s *RateLimitedSender) Send(ctx context.Context, email Email) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.next.Send(ctx, email)
}
