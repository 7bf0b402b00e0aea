package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Ananth-NQI/orderline-backend/internal/services"
)

// DefaultSweepSchedule runs the expiry sweep every five minutes
const DefaultSweepSchedule = "@every 5m"

// SessionSweeper expires idle sessions on a schedule so dashboards see
// them close without waiting for the customer's next message.
type SessionSweeper struct {
	sessions *services.SessionManager
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewSessionSweeper creates a new sweeper
func NewSessionSweeper(sessions *services.SessionManager, schedule string, log *slog.Logger) *SessionSweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	log = log.With(slog.String("component", "sweeper"))
	cl := cronLogger{log}
	return &SessionSweeper{
		sessions: sessions,
		schedule: schedule,
		timeout:  time.Minute,
		cron:     cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		logger:   log,
	}
}

// Start schedules the sweep
func (s *SessionSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("session sweeper started", slog.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *SessionSweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("session sweeper stopped")
}

func (s *SessionSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("session sweep failed", slog.Any("error", err))
	}
}

// RunOnce expires idle sessions now and reports how many were closed
func (s *SessionSweeper) RunOnce(ctx context.Context) (int, error) {
	n, err := s.sessions.ExpireIdle(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired idle sessions", slog.Int("count", n))
	}
	return n, nil
}

// cronLogger routes cron's own logging through slog
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
