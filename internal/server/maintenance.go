package server

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// MaintenanceSchedule runs the cleanup job at the top of every hour.
const MaintenanceSchedule = "0 * * * *"

// Sweep deletes expired sessions and sign-in codes and prunes the in-memory
// rate limiter and progress entries.
func (s *Server) Sweep() {
	if n, err := s.sessionStore.DeleteExpired(); err != nil {
		s.logger.Error("cleanup expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired sessions", "count", n)
	}

	if n, err := s.loginCodeStore.DeleteExpired(); err != nil {
		s.logger.Error("cleanup expired sign-in codes", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired sign-in codes", "count", n)
	}

	if n := s.rateLimiter.Cleanup(); n > 0 {
		s.logger.Debug("pruned rate limiter", "count", n)
	}
	if s.memProgress != nil {
		if n := s.memProgress.Prune(); n > 0 {
			s.logger.Debug("pruned progress entries", "count", n)
		}
	}
}

// StartMaintenance schedules Sweep and starts the scheduler. Stop the
// returned cron to end it.
func (s *Server) StartMaintenance(logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{logger})))
	if _, err := c.AddFunc(MaintenanceSchedule, s.Sweep); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
