package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ownspend/agent/pkg/api"
)

type offline struct{}

func (offline) Online(context.Context) bool { return false }

func fastConfig() Config {
	return Config{
		Interval:   time.Minute,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		MaxRetries: 3,
	}
}

func TestRunPass_SuccessRunsOnce(t *testing.T) {
	var calls atomic.Int32
	pass := func(context.Context) (api.PassOutcome, error) {
		calls.Add(1)
		return api.OutcomeSynced, nil
	}

	s := New(pass, AlwaysOnline{}, nil, fastConfig(), nil)
	s.runPass(context.Background())

	if got := calls.Load(); got != 1 {
		t.Errorf("pass ran %d times, want 1", got)
	}
}

func TestRunPass_RetryOutcomeBacksOff(t *testing.T) {
	var calls atomic.Int32
	pass := func(context.Context) (api.PassOutcome, error) {
		calls.Add(1)
		return api.OutcomeRetry, nil
	}

	s := New(pass, AlwaysOnline{}, nil, fastConfig(), nil)
	s.runPass(context.Background())

	// A totally failed pass is retried up to the attempt limit.
	if got := calls.Load(); got != 3 {
		t.Errorf("pass ran %d times, want 3", got)
	}
}

func TestRunPass_RecoveryStopsRetrying(t *testing.T) {
	var calls atomic.Int32
	pass := func(context.Context) (api.PassOutcome, error) {
		if calls.Add(1) == 1 {
			return api.OutcomeRetry, nil
		}
		return api.OutcomeSynced, nil
	}

	s := New(pass, AlwaysOnline{}, nil, fastConfig(), nil)
	s.runPass(context.Background())

	if got := calls.Load(); got != 2 {
		t.Errorf("pass ran %d times, want 2", got)
	}
}

func TestRunPass_NotConfiguredIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	pass := func(context.Context) (api.PassOutcome, error) {
		calls.Add(1)
		return api.OutcomeRetry, api.ErrNotConfigured
	}

	s := New(pass, AlwaysOnline{}, nil, fastConfig(), nil)
	s.runPass(context.Background())

	// Backoff does not help an unconfigured agent.
	if got := calls.Load(); got != 1 {
		t.Errorf("pass ran %d times, want 1", got)
	}
}

func TestRunPass_SkippedWhileOffline(t *testing.T) {
	var calls atomic.Int32
	pass := func(context.Context) (api.PassOutcome, error) {
		calls.Add(1)
		return api.OutcomeSynced, nil
	}

	s := New(pass, offline{}, nil, fastConfig(), nil)
	s.runPass(context.Background())

	if got := calls.Load(); got != 0 {
		t.Errorf("pass ran %d times while offline, want 0", got)
	}
}

func TestRunPass_SkippedWhenDisabled(t *testing.T) {
	var calls atomic.Int32
	pass := func(context.Context) (api.PassOutcome, error) {
		calls.Add(1)
		return api.OutcomeSynced, nil
	}

	s := New(pass, AlwaysOnline{}, func() bool { return false }, fastConfig(), nil)
	s.runPass(context.Background())

	if got := calls.Load(); got != 0 {
		t.Errorf("pass ran %d times while disabled, want 0", got)
	}
}

func TestRequestImmediate_Coalesces(t *testing.T) {
	s := New(nil, AlwaysOnline{}, nil, fastConfig(), nil)

	// Requests made before the loop picks one up collapse into a single
	// queued pass.
	s.RequestImmediate()
	s.RequestImmediate()
	s.RequestImmediate()

	if got := len(s.immediate); got != 1 {
		t.Errorf("queued requests: got %d, want 1", got)
	}
}

func TestEnsurePeriodic_KeepsExistingSchedule(t *testing.T) {
	s := New(nil, AlwaysOnline{}, nil, fastConfig(), nil)

	s.EnsurePeriodic()
	first := s.periodic
	if first == 0 {
		t.Fatal("periodic trigger not registered")
	}

	s.EnsurePeriodic()
	if s.periodic != first {
		t.Errorf("re-registration replaced the schedule: %v -> %v", first, s.periodic)
	}
	if got := len(s.cron.Entries()); got != 1 {
		t.Errorf("cron entries: got %d, want 1", got)
	}
}

func TestStart_RunsBootPass(t *testing.T) {
	var calls atomic.Int32
	pass := func(context.Context) (api.PassOutcome, error) {
		calls.Add(1)
		return api.OutcomeNothingToDo, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(pass, AlwaysOnline{}, nil, fastConfig(), nil)
	s.Start(ctx)

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("boot pass never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
