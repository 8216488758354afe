package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/DhruviKhanpara/LMS-sub001/mailer"
	"github.com/sirupsen/logrus"
)

// NewMailSender builds the sender named by MAIL_TRANSPORT, rate limited.
// The returned stop func flushes the Pub/Sub topic when one was opened.
func NewMailSender(ctx context.Context, s Settings, logger *logrus.Logger) (mailer.Sender, func(), error) {
	stop := func() {}
	var sender mailer.Sender

	switch strings.ToLower(strings.TrimSpace(s.Mail.Transport)) {
	case "smtp":
		if s.Mail.SMTPHost == "" {
			return nil, stop, fmt.Errorf("MAIL_TRANSPORT=smtp needs SMTP_HOST")
		}
		sender = &mailer.SMTPSender{
			Host:     s.Mail.SMTPHost,
			Port:     s.Mail.SMTPPort,
			Username: s.Mail.SMTPUser,
			Password: s.Mail.SMTPPassword,
			From:     s.Mail.From,
		}
	case "pubsub":
		publisher, err := NewTopicPublisher(ctx, s, logger)
		if err != nil {
			return nil, stop, fmt.Errorf("mail topic: %w", err)
		}
		stop = publisher.Stop
		sender = &mailer.PubSubSender{Publisher: publisher, From: s.Mail.From}
	case "log", "":
		sender = &mailer.LogSender{Logger: logger}
	default:
		return nil, stop, fmt.Errorf("unknown MAIL_TRANSPORT %q", s.Mail.Transport)
	}

	if s.Mail.RatePerSecond > 0 {
		sender = mailer.NewRateLimitedSender(sender, s.Mail.RatePerSecond, s.Mail.Burst)
	}
	return sender, stop, nil
}
