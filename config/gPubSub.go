package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// connectPubSub dials Pub/Sub, retrying with the same backoff as the database.
func connectPubSub(ctx context.Context, s Settings, logger *logrus.Logger) (*pubsub.Client, error) {
	projectID := s.Mail.PubSubProject
	if projectID == "" {
		projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if projectID == "" {
		return nil, errors.New("MAIL_TRANSPORT=pubsub needs PUBSUB_PROJECT_ID or GOOGLE_CLOUD_PROJECT")
	}

	var opts []option.ClientOption
	if s.Mail.PubSubCredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(s.Mail.PubSubCredentialsJSON)))
	}

	log := logger.WithFields(logrus.Fields{"field": "pubsub", "project_id": projectID})
	for attempt := 1; ; attempt++ {
		client, err := pubsub.NewClient(ctx, projectID, opts...)
		if err == nil {
			log.WithField("attempt", attempt).Info("pubsub client ready")
			return client, nil
		}
		sleep := retrySleep(attempt)
		log.WithField("attempt", attempt).Warn(fmt.Sprintf("pubsub client failed: %v; retrying in %s", err, sleep))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func ensureTopic(ctx context.Context, client *pubsub.Client, name string) (*pubsub.Topic, error) {
	if name == "" {
		return nil, errors.New("MAIL_PUBSUB_TOPIC is empty")
	}
	t := client.Topic(name)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", name, err)
	}
	if ok {
		return t, nil
	}
	if t, err = client.CreateTopic(ctx, name); err != nil {
		return nil, fmt.Errorf("create topic %q: %w", name, err)
	}
	return t, nil
}

// TopicPublisher hands rendered mail to the relay topic and waits for the
// server-assigned message id.
type TopicPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewTopicPublisher(ctx context.Context, s Settings, logger *logrus.Logger) (*TopicPublisher, error) {
	client, err := connectPubSub(ctx, s, logger)
	if err != nil {
		return nil, err
	}
	t, err := ensureTopic(ctx, client, s.Mail.PubSubTopic)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &TopicPublisher{client: client, topic: t}, nil
}

func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	return p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

// Stop flushes pending publishes and closes the client.
func (p *TopicPublisher) Stop() {
	p.topic.Stop()
	_ = p.client.Close()
}
