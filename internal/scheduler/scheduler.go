// Package scheduler owns the timing of the periodic payout jobs. Services
// expose pure operations; this component decides when they run.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
	"github.com/cardhaven/cardhaven-payments-service/internal/service"
)

const jobTimeout = 10 * time.Minute

// PayoutRunner is the payout service surface the scheduled jobs invoke.
type PayoutRunner interface {
	ProcessAutomaticPayouts(ctx context.Context) (*service.AutoPayoutSummary, error)
	CheckFailedPayouts(ctx context.Context) (int, error)
	ReconcilePayoutOrders(ctx context.Context) (int64, error)
	GetEligibleSellers(ctx context.Context) ([]*models.EligibleSeller, error)
}

// Scheduler runs the recurring payout jobs on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	payouts PayoutRunner
	cfg     config.SchedulerConfig
	logger  *zap.SugaredLogger
}

// New creates a scheduler wired to the payout jobs.
func New(payouts PayoutRunner, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		payouts: payouts,
		cfg:     cfg,
		logger:  logging.NewLogger("scheduler"),
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"automatic-payouts", s.cfg.AutoPayoutSpec, s.runAutomaticPayouts},
		{"failed-payout-scan", s.cfg.FailedPayoutSpec, s.runFailedPayoutScan},
		{"payout-reconcile", s.cfg.ReconcileSpec, s.runPayoutReconcile},
		{"eligibility-scan", s.cfg.EligibilitySpec, s.runEligibilityScan},
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.spec, func() { s.runJob(job.name, job.run) })
		if err != nil {
			return err
		}
		s.logger.Infow("Job scheduled", "job", job.name, "spec", job.spec)
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) runJob(name string, run func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := time.Now()
	s.logger.Infow("Job starting", "job", name)

	if err := run(ctx); err != nil {
		s.logger.Errorw("Job failed", "job", name, "error", err.Error())
		return
	}
	s.logger.Infow("Job finished", "job", name, "duration", time.Since(started).String())
}

func (s *Scheduler) runAutomaticPayouts(ctx context.Context) error {
	summary, err := s.payouts.ProcessAutomaticPayouts(ctx)
	if err != nil {
		return err
	}
	s.logger.Infow("Automatic payout run complete",
		"eligible", summary.Eligible,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return nil
}

func (s *Scheduler) runFailedPayoutScan(ctx context.Context) error {
	_, err := s.payouts.CheckFailedPayouts(ctx)
	return err
}

func (s *Scheduler) runPayoutReconcile(ctx context.Context) error {
	_, err := s.payouts.ReconcilePayoutOrders(ctx)
	return err
}

func (s *Scheduler) runEligibilityScan(ctx context.Context) error {
	eligible, err := s.payouts.GetEligibleSellers(ctx)
	if err != nil {
		return err
	}
	s.logger.Infow("Eligibility scan complete", "eligible_sellers", len(eligible))
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}
