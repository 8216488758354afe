package main

import (
	"context"
	"os"
	"strings"

	"github.com/DhruviKhanpara/LMS-sub001/config"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"github.com/sirupsen/logrus"
)

// startOutboxProcessor runs the mail delivery loop in the background. It
// returns a channel closed once the loop has stopped.
func startOutboxProcessor(ctx context.Context, s config.Settings, p *workflow.OutboxProcessor, logger *logrus.Logger) <-chan struct{} {
	done := make(chan struct{})
	if !s.Outbox.Enabled {
		logger.WithFields(logrus.Fields{"field": "OutboxProcessor"}).Warn("OUTBOX_PROCESSOR_ENABLED=false; notifications stay queued")
		close(done)
		return done
	}

	if s.Outbox.PollInterval > 0 {
		p.Interval = s.Outbox.PollInterval
	}
	if s.Outbox.BatchSize > 0 {
		p.BatchSize = s.Outbox.BatchSize
	}
	if s.Outbox.LockTimeout > 0 {
		p.LockTTL = s.Outbox.LockTimeout
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		p.WorkerID = "outbox-" + host + "-" + strings.TrimPrefix(p.WorkerID, "outbox-")
	}

	logger.WithFields(logrus.Fields{
		"field":     "OutboxProcessor",
		"worker_id": p.WorkerID,
		"interval":  p.Interval.String(),
	}).Info("outbox processor started")

	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	return done
}
