package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/plinio-cardoso/financeiro/internal/clock"
	obsmetrics "github.com/plinio-cardoso/financeiro/internal/observability/metrics"
	recurrencedomain "github.com/plinio-cardoso/financeiro/internal/recurrence/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mocks for dependencies

type mockRecurrenceSvc struct {
	recurrencedomain.Service

	generateAllCalls int
	generateAllFunc  func(ctx context.Context) (*recurrencedomain.GenerateResponse, error)
}

func (m *mockRecurrenceSvc) GenerateAll(ctx context.Context) (*recurrencedomain.GenerateResponse, error) {
	m.generateAllCalls++
	if m.generateAllFunc != nil {
		return m.generateAllFunc(ctx)
	}
	return &recurrencedomain.GenerateResponse{}, nil
}

type mockNotificationSvc struct {
	calls     int
	batchSize int
	sent      int
	err       error
}

func (m *mockNotificationSvc) SendDueReminders(ctx context.Context, batchSize int) (int, error) {
	m.calls++
	m.batchSize = batchSize
	return m.sent, m.err
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

func newSchedulerForTest(t *testing.T, recurrenceSvc *mockRecurrenceSvc, notificationSvc *mockNotificationSvc, cfg Config) (*Scheduler, *prometheus.Registry) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "test", Environment: "test"})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))

	scheduler, err := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           fakeClock,
		RecurrenceSvc:   recurrenceSvc,
		NotificationSvc: notificationSvc,
		Config:          cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return scheduler, registry
}

func TestRunOnceRunsBothJobs(t *testing.T) {
	recurrenceSvc := &mockRecurrenceSvc{
		generateAllFunc: func(ctx context.Context) (*recurrencedomain.GenerateResponse, error) {
			return &recurrencedomain.GenerateResponse{
				RulesProcessed:   3,
				InstancesCreated: 5,
			}, nil
		},
	}
	notificationSvc := &mockNotificationSvc{sent: 2}
	scheduler, registry := newSchedulerForTest(t, recurrenceSvc, notificationSvc, Config{ReminderBatchSize: 42})

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if recurrenceSvc.generateAllCalls != 1 {
		t.Fatalf("generate all called %d times, want 1", recurrenceSvc.generateAllCalls)
	}
	if notificationSvc.calls != 1 {
		t.Fatalf("reminders called %d times, want 1", notificationSvc.calls)
	}
	if notificationSvc.batchSize != 42 {
		t.Fatalf("reminder batch size %d, want 42", notificationSvc.batchSize)
	}

	for _, job := range []string{"generate_instances", "due_reminders"} {
		runs := getCounterValue(t, registry, "financeiro_scheduler_job_runs_total", map[string]string{
			"service": "test", "env": "test", "job": job,
		})
		if runs != 1 {
			t.Fatalf("job %s runs counter %v, want 1", job, runs)
		}
	}
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	recurrenceSvc := &mockRecurrenceSvc{}
	notificationSvc := &mockNotificationSvc{}
	scheduler, _ := newSchedulerForTest(t, recurrenceSvc, notificationSvc, Config{
		EnabledJobs: []string{"due_reminders"},
	})

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if recurrenceSvc.generateAllCalls != 0 {
		t.Fatalf("disabled generation job ran %d times", recurrenceSvc.generateAllCalls)
	}
	if notificationSvc.calls != 1 {
		t.Fatalf("reminders called %d times, want 1", notificationSvc.calls)
	}
}

func TestRunOnceTreatsDeadlineAsSoftFailure(t *testing.T) {
	recurrenceSvc := &mockRecurrenceSvc{
		generateAllFunc: func(ctx context.Context) (*recurrencedomain.GenerateResponse, error) {
			return nil, context.DeadlineExceeded
		},
	}
	notificationSvc := &mockNotificationSvc{}
	scheduler, registry := newSchedulerForTest(t, recurrenceSvc, notificationSvc, Config{})

	if err := scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("deadline should not fail the run: %v", err)
	}

	timeouts := getCounterValue(t, registry, "financeiro_scheduler_job_timeouts_total", map[string]string{
		"service": "test", "env": "test", "job": "generate_instances",
	})
	if timeouts != 1 {
		t.Fatalf("timeout counter %v, want 1", timeouts)
	}
	if notificationSvc.calls != 1 {
		t.Fatalf("reminder job skipped after soft failure")
	}
}

func TestRunOnceReportsHardFailures(t *testing.T) {
	jobErr := errors.New("database gone")
	recurrenceSvc := &mockRecurrenceSvc{
		generateAllFunc: func(ctx context.Context) (*recurrencedomain.GenerateResponse, error) {
			return nil, jobErr
		},
	}
	notificationSvc := &mockNotificationSvc{}
	scheduler, _ := newSchedulerForTest(t, recurrenceSvc, notificationSvc, Config{})

	err := scheduler.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected error from failing job")
	}
	if !errors.Is(err, jobErr) {
		t.Fatalf("got %v, want wrapped job error", err)
	}
	if !strings.Contains(err.Error(), "generate_instances") {
		t.Fatalf("error %q does not name the failing job", err)
	}
	if notificationSvc.calls != 1 {
		t.Fatalf("remaining jobs skipped after failure")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.RunInterval <= 0 {
		t.Fatalf("run interval default %v", cfg.RunInterval)
	}
	if cfg.JobTimeout <= 0 {
		t.Fatalf("job timeout default %v", cfg.JobTimeout)
	}
	if cfg.ReminderBatchSize <= 0 {
		t.Fatalf("reminder batch size default %d", cfg.ReminderBatchSize)
	}
}
