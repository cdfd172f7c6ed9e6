package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pawtraits/backend/internal/commission"
	"github.com/pawtraits/backend/internal/monitoring"
	"go.uber.org/zap"
)

// BalanceMaintainer is the part of the commission recorder the schedule uses.
type BalanceMaintainer interface {
	Reconcile(ctx context.Context) ([]commission.Summary, error)
	RetryPendingBalances(ctx context.Context) (int, error)
}

// CodeExpirer deactivates expired referral codes.
type CodeExpirer interface {
	DeactivateExpiredCodes(ctx context.Context) (int64, error)
}

// WindowCleaner drops expired in-memory rate limit windows.
type WindowCleaner interface {
	Cleanup() int
}

// Scheduler runs periodic maintenance.
type Scheduler struct {
	balances BalanceMaintainer
	codes    CodeExpirer
	windows  WindowCleaner
	logger   *zap.Logger
	cron     *gocron.Scheduler
}

// NewScheduler creates the maintenance schedule. windows may be nil when
// rate limits live in Redis.
func NewScheduler(balances BalanceMaintainer, codes CodeExpirer, windows WindowCleaner, logger *zap.Logger) *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.WaitForScheduleAll()
	return &Scheduler{
		balances: balances,
		codes:    codes,
		windows:  windows,
		logger:   logger,
		cron:     cron,
	}
}

// RunReconciliation compares stored balances against the ledgers and
// publishes the number of drifted customers.
func (s *Scheduler) RunReconciliation(ctx context.Context) {
	drifted, err := s.balances.Reconcile(ctx)
	if err != nil {
		s.logger.Error("balance reconciliation failed", zap.Error(err))
		return
	}
	monitoring.BalanceDriftCustomers.Set(float64(len(drifted)))
	s.logger.Info("balance reconciliation finished", zap.Int("drifted_customers", len(drifted)))
}

// RunBalanceRetry re-applies credits whose balance update failed.
func (s *Scheduler) RunBalanceRetry(ctx context.Context) {
	fixed, err := s.balances.RetryPendingBalances(ctx)
	if err != nil {
		s.logger.Error("balance retry failed", zap.Error(err))
		return
	}
	if fixed > 0 {
		s.logger.Info("pending balances applied", zap.Int("fixed", fixed))
	}
}

// RunCodeExpiry deactivates partner codes past their expiry.
func (s *Scheduler) RunCodeExpiry(ctx context.Context) {
	n, err := s.codes.DeactivateExpiredCodes(ctx)
	if err != nil {
		s.logger.Error("referral code expiry sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("referral code expiry sweep finished", zap.Int64("deactivated", n))
}

// Start registers every task and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.Every(1).Hour().Do(s.RunReconciliation, ctx); err != nil {
		return fmt.Errorf("error scheduling reconciliation: %w", err)
	}
	if _, err := s.cron.Every(10).Minutes().Do(s.RunBalanceRetry, ctx); err != nil {
		return fmt.Errorf("error scheduling balance retry: %w", err)
	}
	if _, err := s.cron.Every(1).Day().At("03:00").Do(s.RunCodeExpiry, ctx); err != nil {
		return fmt.Errorf("error scheduling code expiry: %w", err)
	}
	if s.windows != nil {
		if _, err := s.cron.Every(5).Minutes().Do(func() {
			if n := s.windows.Cleanup(); n > 0 {
				s.logger.Debug("rate limit windows cleaned", zap.Int("removed", n))
			}
		}); err != nil {
			return fmt.Errorf("error scheduling rate limit cleanup: %w", err)
		}
	}

	s.cron.StartAsync()
	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
