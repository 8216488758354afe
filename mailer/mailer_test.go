package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func overdueEmail() Email {
	return Email{
		To:       []string{"ana@example.com"},
		Subject:  "Overdue: Dune",
		Template: TemplateOverdue,
		Replacements: map[string]string{
			"Name":      "Ana",
			"BookTitle": "Dune",
			"DueDate":   "2024-03-01",
			"Amount":    "50.00",
		},
	}
}

func TestRender(t *testing.T) {
	body, err := Render(overdueEmail())
	require.NoError(t, err)
	assert.Contains(t, body, "Hello Ana,")
	assert.Contains(t, body, `"Dune" was due on 2024-03-01`)
	assert.Contains(t, body, "50.00")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(e *Email)
		valid bool
	}{
		{"ok", func(e *Email) {}, true},
		{"no recipients", func(e *Email) { e.To = nil }, false},
		{"bad address", func(e *Email) { e.To = []string{"ana"} }, false},
		{"no subject", func(e *Email) { e.Subject = "" }, false},
		{"unknown template", func(e *Email) { e.Template = "invoice" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := overdueEmail()
			tc.edit(&e)
			err := Validate(e)
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidEmail), "got %v", err)
		})
	}
}

type publishedMessage struct {
	data  []byte
	attrs map[string]string
}

type fakePublisher struct {
	published []publishedMessage
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, publishedMessage{data: data, attrs: attrs})
	return "msg-1", nil
}

func TestPubSubSender(t *testing.T) {
	pub := &fakePublisher{}
	s := &PubSubSender{Publisher: pub, From: "library@example.com"}

	require.NoError(t, s.Send(context.Background(), overdueEmail()))
	require.Len(t, pub.published, 1)

	var msg relayMessage
	require.NoError(t, json.Unmarshal(pub.published[0].data, &msg))
	assert.Equal(t, "library@example.com", msg.From)
	assert.Equal(t, []string{"ana@example.com"}, msg.To)
	assert.Contains(t, msg.Body, "Hello Ana,")
	assert.Equal(t, TemplateOverdue, pub.published[0].attrs["template"])

	pub.err = errors.New("topic not found")
	assert.ErrorContains(t, s.Send(context.Background(), overdueEmail()), "publish mail")
}

func TestLogSender(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := &LogSender{Logger: logger}

	require.NoError(t, s.Send(context.Background(), overdueEmail()))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "LogSender", hook.LastEntry().Data["field"])
	assert.Contains(t, hook.LastEntry().Message, "Dune")
}

func TestRateLimitedSender(t *testing.T) {
	ctrl := gomock.NewController(t)
	next := NewMockSender(ctrl)
	next.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	s := NewRateLimitedSender(next, 1000, 2)
	require.NoError(t, s.Send(context.Background(), overdueEmail()))
	require.NoError(t, s.Send(context.Background(), overdueEmail()))

	// the burst is used up and the limiter would wait longer than the deadline
	slow := NewRateLimitedSender(next, 0.001, 1)
	slow.limiter.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, slow.Send(ctx, overdueEmail()))
}
