package workflow

import (
	"context"
	"time"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = systemClock{}

// Locker serializes work on a key across instances. The returned func releases it.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// NoopLocker is used when redis is not configured; row locks still apply.
type NoopLocker struct{}

func (NoopLocker) Obtain(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// Scope narrows a job run. The zero value means every user.
type Scope struct {
	UserId *int
	// TriggeredByLogin marks runs started from a user session refresh.
	TriggeredByLogin bool
}

func ForUser(userId int) Scope {
	return Scope{UserId: &userId, TriggeredByLogin: true}
}

// RunSummary is what a job run reports back.
type RunSummary struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

func (s *RunSummary) Add(o RunSummary) {
	s.Processed += o.Processed
	s.Updated += o.Updated
	s.Failed += o.Failed
}
