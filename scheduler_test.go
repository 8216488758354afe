package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/config"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	err      error
	obtained []string
	released int
}

func (l *fakeLocker) Obtain(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.obtained = append(l.obtained, key)
	return func() { l.released++ }, nil
}

func testSettings() config.Settings {
	var s config.Settings
	s.Jobs.PenaltyAccrualInterval = time.Hour
	s.Jobs.HoldingAuditInterval = time.Hour
	s.Jobs.ReservationAllocationInterval = time.Minute
	s.Jobs.MembershipReminderInterval = 0
	s.Jobs.Timeout = time.Minute
	s.Jobs.Disabled = []string{"Holding-Audit"}
	return s
}

func TestNewScheduler_PicksEnabledJobs(t *testing.T) {
	logger, _ := test.NewNullLogger()
	engine := workflow.NewEngine(nil, nil, workflow.NoopLocker{}, logger)

	sched := NewScheduler(testSettings(), engine, workflow.NoopLocker{}, logger)

	var names []string
	for _, j := range sched.Jobs {
		names = append(names, j.job.Name)
	}
	assert.Equal(t, []string{workflow.JobPenaltyAccrual, workflow.JobReservationAllocation}, names)
}

func TestScheduler_RunOnce(t *testing.T) {
	var runs int
	job := workflow.Job{Name: "demo", Run: func(ctx context.Context) (workflow.RunSummary, error) {
		runs++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "runs are bounded by the job timeout")
		return workflow.RunSummary{Processed: 4, Updated: 2}, nil
	}}

	t.Run("runs under the job lock", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		locker := &fakeLocker{}
		s := &Scheduler{Locker: locker, Logger: logger, Timeout: time.Minute}

		assert.True(t, s.runOnce(context.Background(), job))
		assert.Equal(t, 1, runs)
		assert.Equal(t, []string{"job:demo"}, locker.obtained)
		assert.Equal(t, 1, locker.released)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, 4, hook.LastEntry().Data["processed"])
	})

	t.Run("skips when another instance holds the lock", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		logger.SetLevel(logrus.DebugLevel)
		locker := &fakeLocker{err: fmt.Errorf("obtain lock job:demo: %w", redislock.ErrNotObtained)}
		s := &Scheduler{Locker: locker, Logger: logger, Timeout: time.Minute}

		before := runs
		assert.False(t, s.runOnce(context.Background(), job))
		assert.Equal(t, before, runs)
		assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	})

	t.Run("logs failed runs", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		s := &Scheduler{Locker: &fakeLocker{}, Logger: logger}
		failing := workflow.Job{Name: "broken", Run: func(context.Context) (workflow.RunSummary, error) {
			return workflow.RunSummary{Failed: 1}, errors.New("db gone")
		}}

		assert.True(t, s.runOnce(context.Background(), failing))
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
		assert.Contains(t, hook.LastEntry().Message, "db gone")
	})
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ran := make(chan struct{}, 10)
	s := &Scheduler{
		Locker: &fakeLocker{},
		Logger: logger,
		Jobs: []scheduledJob{{
			interval: 5 * time.Millisecond,
			job: workflow.Job{Name: "tick", Run: func(context.Context) (workflow.RunSummary, error) {
				select {
				case ran <- struct{}{}:
				default:
				}
				return workflow.RunSummary{}, nil
			}},
		}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestCorsConfig(t *testing.T) {
	var s config.Settings
	assert.True(t, corsConfig(s).AllowAllOrigins)

	s.Env = "production"
	s.HTTP.CORSAllowedOrigins = "https://library.example.com, https://staff.example.com"
	cfg := corsConfig(s)
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://library.example.com", "https://staff.example.com"}, cfg.AllowOrigins)
}
