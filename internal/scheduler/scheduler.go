// Package scheduler decides when sync passes run. It owns the immediate,
// periodic and boot triggers plus the backoff policy, but contains no sync
// logic itself.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/robfig/cron/v3"

	"github.com/ownspend/agent/pkg/api"
)

// PassFunc executes one sync pass.
type PassFunc func(ctx context.Context) (api.PassOutcome, error)

// errPassRetry marks a pass whose every attempted item failed.
var errPassRetry = errors.New("sync pass requested retry")

// Config holds scheduler tunables.
type Config struct {
	// Interval between periodic passes. Defaults to 15 minutes.
	Interval time.Duration
	// BaseDelay is the first backoff delay after a totally failed pass.
	// Defaults to 30 seconds; subsequent delays grow exponentially.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay. Defaults to 10 minutes.
	MaxDelay time.Duration
	// MaxRetries bounds backoff attempts per trigger. Defaults to 5.
	MaxRetries int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 30 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
}

// Scheduler triggers sync passes. All triggers funnel through a buffered
// request channel of size one, so a request made while another is already
// queued but not yet started is coalesced with it.
type Scheduler struct {
	pass    PassFunc
	conn    Connectivity
	enabled func() bool
	cfg     Config
	logger  *slog.Logger

	immediate chan struct{}

	mu       sync.Mutex
	cron     *cron.Cron
	periodic cron.EntryID
}

// New creates a scheduler. enabled may be nil, meaning always enabled;
// otherwise passes are skipped while it reports false (auto-sync toggle).
func New(pass PassFunc, conn Connectivity, enabled func() bool, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if conn == nil {
		conn = AlwaysOnline{}
	}

	return &Scheduler{
		pass:      pass,
		conn:      conn,
		enabled:   enabled,
		cfg:       cfg,
		logger:    logger,
		immediate: make(chan struct{}, 1),
	}
}

// Start establishes the boot trigger: the periodic schedule is (re)created
// and one immediate pass is requested to drain anything queued while the
// process was down. It returns after starting the trigger goroutines; they
// stop when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.EnsurePeriodic()

	s.mu.Lock()
	s.cron.Start()
	s.mu.Unlock()

	go s.loop(ctx)
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cron != nil {
			s.cron.Stop()
		}
	}()

	s.RequestImmediate()
	s.logger.Info("scheduler started", "interval", s.cfg.Interval)
}

// EnsurePeriodic registers the periodic trigger. Calling it again keeps the
// existing schedule rather than resetting it.
func (s *Scheduler) EnsurePeriodic() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		s.cron = cron.New()
	}
	if s.periodic != 0 {
		return
	}

	id, err := s.cron.AddFunc("@every "+s.cfg.Interval.String(), s.RequestImmediate)
	if err != nil {
		// Interval strings produced from a Duration always parse.
		s.logger.Error("failed to register periodic trigger", "error", err)
		return
	}
	s.periodic = id
}

// RequestImmediate asks for the soonest possible pass. A request made while
// one is already queued is dropped; the queued pass covers it.
func (s *Scheduler) RequestImmediate() {
	select {
	case s.immediate <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.immediate:
			s.runPass(ctx)
		}
	}
}

// runPass executes one pass, retrying it under exponential backoff when the
// engine reports total failure. Not-configured passes are never retried;
// user action is required first.
func (s *Scheduler) runPass(ctx context.Context) {
	if s.enabled != nil && !s.enabled() {
		s.logger.Debug("auto sync disabled, skipping pass")
		return
	}
	if !s.conn.Online(ctx) {
		s.logger.Info("offline, skipping sync pass")
		return
	}

	err := retry.Do(
		func() error {
			outcome, err := s.pass(ctx)
			if err != nil {
				if errors.Is(err, api.ErrNotConfigured) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			if outcome == api.OutcomeRetry {
				return errPassRetry
			}
			s.logger.Debug("sync pass finished", "outcome", outcome)
			return nil
		},
		retry.Attempts(uint(s.cfg.MaxRetries)),
		retry.Delay(s.cfg.BaseDelay),
		retry.MaxDelay(s.cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			// Re-check connectivity before burning a retry attempt.
			return retry.IsRecoverable(err) && s.conn.Online(ctx)
		}),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("sync pass gave up", "error", err)
	}
}
