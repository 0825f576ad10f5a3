package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/plinio-cardoso/financeiro/internal/clock"
	"github.com/plinio-cardoso/financeiro/internal/notification"
	obsmetrics "github.com/plinio-cardoso/financeiro/internal/observability/metrics"
	recurrencedomain "github.com/plinio-cardoso/financeiro/internal/recurrence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	RecurrenceSvc   recurrencedomain.Service
	NotificationSvc notification.Service
	Config          Config `optional:"true"`
}

type Scheduler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	recurrenceSvc   recurrencedomain.Service
	notificationSvc notification.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.RecurrenceSvc == nil || p.NotificationSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		recurrenceSvc:   p.RecurrenceSvc,
		notificationSvc: p.NotificationSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline and cancellation are soft failures: the next tick resumes
	// where the cursor left off.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"generate_instances", s.isJobEnabled("generate_instances"), func(ctx context.Context) error {
			return s.runJob(ctx, "generate_instances", s.cfg.JobTimeout, s.GenerateInstancesJob)
		}},
		{"due_reminders", s.isJobEnabled("due_reminders"), func(ctx context.Context) error {
			return s.runJob(ctx, "due_reminders", s.cfg.JobTimeout, s.DueRemindersJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// GenerateInstancesJob walks every active rule and materializes the
// instances due inside the configured horizon.
func (s *Scheduler) GenerateInstancesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "generate_instances")
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	resp, err := s.recurrenceSvc.GenerateAll(ctx)
	if resp != nil {
		run.AddProcessed(resp.RulesProcessed)
		if resp.RulesFailed > 0 {
			run.errorCount += resp.RulesFailed
		}
		s.logger(ctx).Info("scheduler.generation.summary",
			zap.String("run_id", run.runID),
			zap.Int("rules_processed", resp.RulesProcessed),
			zap.Int("rules_failed", resp.RulesFailed),
			zap.Int("rules_exhausted", resp.RulesExhausted),
			zap.Int("instances_created", resp.InstancesCreated),
		)
	}
	return err
}

// DueRemindersJob mails reminders for pending transactions near or past
// their due date.
func (s *Scheduler) DueRemindersJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "due_reminders")
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	sent, err := s.notificationSvc.SendDueReminders(ctx, s.cfg.ReminderBatchSize)
	run.AddProcessed(sent)
	if err != nil {
		run.IncError()
	}
	return err
}
