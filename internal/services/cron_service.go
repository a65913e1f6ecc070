package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	unverifiedRetention = 7 * 24 * time.Hour
	auditRetention      = 90 * 24 * time.Hour
	jobTimeout          = 2 * time.Minute
)

// OTPSweeper clears OTP state whose expiry has passed
type OTPSweeper interface {
	ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
}

// UnverifiedSweeper deletes registrations that never verified
type UnverifiedSweeper interface {
	DeleteStaleUnverified(ctx context.Context, cutoff time.Time) (int64, error)
}

// CronJobs are the stores the maintenance jobs work on. Nil members are skipped.
type CronJobs struct {
	UserOTPs    OTPSweeper
	BookingOTPs OTPSweeper
	Unverified  UnverifiedSweeper
	RateLimits  *RateLimitService
	Audit       *AuditService
}

// CronService manages scheduled maintenance jobs
type CronService struct {
	cron   *cron.Cron
	jobs   CronJobs
	logger *logrus.Logger
}

type cronJob struct {
	name string
	spec string
	run  func(ctx context.Context) (int64, error)
}

// NewCronService creates a new CronService
func NewCronService(jobs CronJobs, logger *logrus.Logger) *CronService {
	return &CronService{
		cron:   cron.New(cron.WithSeconds()),
		jobs:   jobs,
		logger: logger,
	}
}

// schedule lists the jobs in "second minute hour day month weekday" form
func (s *CronService) schedule() []cronJob {
	var jobs []cronJob
	if s.jobs.UserOTPs != nil {
		jobs = append(jobs, cronJob{"clear_expired_user_otps", "0 */5 * * * *", func(ctx context.Context) (int64, error) {
			return s.jobs.UserOTPs.ClearExpiredOTPs(ctx, time.Now())
		}})
	}
	if s.jobs.BookingOTPs != nil {
		jobs = append(jobs, cronJob{"clear_expired_booking_otps", "30 */5 * * * *", func(ctx context.Context) (int64, error) {
			return s.jobs.BookingOTPs.ClearExpiredOTPs(ctx, time.Now())
		}})
	}
	if s.jobs.RateLimits != nil {
		jobs = append(jobs, cronJob{"cleanup_rate_limits", "0 */15 * * * *", s.jobs.RateLimits.CleanupExpired})
	}
	if s.jobs.Unverified != nil {
		jobs = append(jobs, cronJob{"delete_stale_unverified_users", "0 0 3 * * *", func(ctx context.Context) (int64, error) {
			return s.jobs.Unverified.DeleteStaleUnverified(ctx, time.Now().Add(-unverifiedRetention))
		}})
	}
	if s.jobs.Audit != nil {
		jobs = append(jobs, cronJob{"cleanup_audit_logs", "0 0 4 * * 0", func(ctx context.Context) (int64, error) {
			return s.jobs.Audit.CleanupOldAuditLogs(ctx, auditRetention)
		}})
	}
	return jobs
}

// Start schedules every job and starts the scheduler
func (s *CronService) Start() error {
	for _, job := range s.schedule() {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(context.Background(), job) }); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
		s.logger.WithFields(logrus.Fields{"job": job.name, "spec": job.spec}).Info("Scheduled maintenance job")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunOnce runs every job immediately and returns rows affected per job
func (s *CronService) RunOnce(ctx context.Context) (map[string]int64, error) {
	results := make(map[string]int64)
	for _, job := range s.schedule() {
		n, err := s.runJob(ctx, job)
		if err != nil {
			return results, fmt.Errorf("%s: %w", job.name, err)
		}
		results[job.name] = n
	}
	return results, nil
}

func (s *CronService) runJob(parent context.Context, job cronJob) (int64, error) {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := job.run(ctx)
	fields := logrus.Fields{"job": job.name, "duration": time.Since(start).String()}
	if err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Maintenance job failed")
		return 0, err
	}
	fields["rows"] = n
	s.logger.WithFields(fields).Info("Maintenance job finished")
	return n, nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
