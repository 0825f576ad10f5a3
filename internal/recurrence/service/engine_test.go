package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/plinio-cardoso/financeiro/internal/clock"
	"github.com/plinio-cardoso/financeiro/internal/config"
	recurrencedomain "github.com/plinio-cardoso/financeiro/internal/recurrence/domain"
	"github.com/plinio-cardoso/financeiro/internal/recurrence/repository"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	transactionrepository "github.com/plinio-cardoso/financeiro/internal/transaction/repository"
	userdomain "github.com/plinio-cardoso/financeiro/internal/user/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	svc    recurrencedomain.Service
	clock  *clock.FakeClock
	node   *snowflake.Node
	userID snowflake.ID
}

func newTestEnv(t *testing.T, start time.Time) *testEnv {
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

	if err := db.AutoMigrate(
		&userdomain.User{},
		&recurrencedomain.RecurrenceRule{},
		&transactiondomain.Transaction{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fakeClock := clock.NewFakeClock(start)

	userID := node.Generate()
	if err := db.Create(&userdomain.User{
		ID:        userID,
		Name:      "Owner",
		Email:     "owner@test.local",
		CreatedAt: start,
		UpdatedAt: start,
	}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	holder := config.NewStaticGenerationConfigHolder(config.GenerationConfig{
		HorizonDays:          30,
		UpcomingReminderDays: 3,
		OverdueReminders:     true,
	})

	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fakeClock,
		Config: holder,
		Repo:   repository.NewRepository(),
		TxRepo: transactionrepository.NewRepository(),
	})

	return &testEnv{db: db, svc: svc, clock: fakeClock, node: node, userID: userID}
}

func (e *testEnv) createRule(t *testing.T, req recurrencedomain.CreateRuleRequest) *recurrencedomain.RecurrenceRule {
	t.Helper()
	req.UserID = e.userID
	rule, err := e.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return rule
}

func (e *testEnv) instances(t *testing.T, ruleID snowflake.ID) []transactiondomain.Transaction {
	t.Helper()
	var instances []transactiondomain.Transaction
	err := e.db.Where("rule_id = ?", ruleID).Order("due_date ASC").Find(&instances).Error
	if err != nil {
		t.Fatalf("load instances: %v", err)
	}
	return instances
}

func (e *testEnv) reload(t *testing.T, ruleID snowflake.ID) *recurrencedomain.RecurrenceRule {
	t.Helper()
	rule, err := e.svc.Get(context.Background(), e.userID, ruleID)
	if err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	return rule
}

func weeklyRule(start time.Time) recurrencedomain.CreateRuleRequest {
	return recurrencedomain.CreateRuleRequest{
		Title:     "Gym",
		Amount:    decimal.NewFromInt(50),
		Direction: transactiondomain.DirectionDebit,
		Frequency: recurrencedomain.FrequencyWeekly,
		Interval:  1,
		StartDate: start,
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	start := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	rule := env.createRule(t, weeklyRule(start))
	first := env.instances(t, rule.ID)
	if len(first) == 0 {
		t.Fatalf("expected instances after create")
	}

	for i := 0; i < 3; i++ {
		resp, err := env.svc.Generate(ctx, recurrencedomain.GenerateRequest{UserID: env.userID, RuleID: &rule.ID})
		if err != nil {
			t.Fatalf("generate pass %d: %v", i, err)
		}
		if resp.InstancesCreated != 0 {
			t.Fatalf("pass %d created %d instances, want 0", i, resp.InstancesCreated)
		}
	}

	second := env.instances(t, rule.ID)
	if len(second) != len(first) {
		t.Fatalf("instance count changed: %d -> %d", len(first), len(second))
	}
	if reloaded := env.reload(t, rule.ID); reloaded.GeneratedCount != len(first) {
		t.Fatalf("generated_count %d, want %d", reloaded.GeneratedCount, len(first))
	}
}

func TestGenerateMonthlyClampAcrossShortMonth(t *testing.T) {
	start := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	req := weeklyRule(start)
	req.Title = "Salary"
	req.Frequency = recurrencedomain.FrequencyMonthly
	req.Direction = transactiondomain.DirectionCredit
	rule := env.createRule(t, req)

	if _, err := env.svc.Generate(ctx, recurrencedomain.GenerateRequest{
		UserID:      env.userID,
		RuleID:      &rule.ID,
		HorizonDays: 70,
	}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	instances := env.instances(t, rule.ID)
	want := []time.Time{
		time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
	}
	if len(instances) != len(want) {
		t.Fatalf("got %d instances, want %d", len(instances), len(want))
	}
	for i, instance := range instances {
		if !instance.DueDate.Equal(want[i]) {
			t.Fatalf("instance %d due %v, want %v", i, instance.DueDate, want[i])
		}
	}
}

func TestGenerateStopsAtOccurrenceLimit(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	// Ten occurrences do not fit inside the default creation horizon, so
	// the rule is still active when the wide pass runs.
	req := weeklyRule(start)
	req.OccurrenceLimit = 10
	rule := env.createRule(t, req)
	if !env.reload(t, rule.ID).Active {
		t.Fatalf("rule exhausted before the wide pass")
	}

	resp, err := env.svc.Generate(ctx, recurrencedomain.GenerateRequest{
		UserID:      env.userID,
		RuleID:      &rule.ID,
		HorizonDays: 365,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	instances := env.instances(t, rule.ID)
	if len(instances) != 10 {
		t.Fatalf("got %d instances, want 10", len(instances))
	}
	if resp.RulesExhausted != 1 {
		t.Fatalf("rules_exhausted %d, want 1", resp.RulesExhausted)
	}

	reloaded := env.reload(t, rule.ID)
	if reloaded.Active {
		t.Fatalf("exhausted rule still active")
	}
	if reloaded.NextDueDate != nil {
		t.Fatalf("exhausted rule has next_due_date %v", reloaded.NextDueDate)
	}
}

func TestGenerateStopsAtEndDate(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	end := start.AddDate(0, 0, 10)
	req := weeklyRule(start)
	req.EndDate = &end
	rule := env.createRule(t, req)

	if _, err := env.svc.Generate(ctx, recurrencedomain.GenerateRequest{
		UserID:      env.userID,
		RuleID:      &rule.ID,
		HorizonDays: 365,
	}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Jan 1 and Jan 8 fit; Jan 15 is past the end date.
	if instances := env.instances(t, rule.ID); len(instances) != 2 {
		t.Fatalf("got %d instances, want 2", len(instances))
	}
	if reloaded := env.reload(t, rule.ID); reloaded.Active {
		t.Fatalf("rule past end_date still active")
	}
}

func TestGenerateHonorsBothBoundsFirstWins(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	// End date allows 2 occurrences, limit allows 5: end date wins.
	end := start.AddDate(0, 0, 10)
	req := weeklyRule(start)
	req.EndDate = &end
	req.OccurrenceLimit = 5
	rule := env.createRule(t, req)

	if _, err := env.svc.Generate(ctx, recurrencedomain.GenerateRequest{
		UserID:      env.userID,
		RuleID:      &rule.ID,
		HorizonDays: 365,
	}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if instances := env.instances(t, rule.ID); len(instances) != 2 {
		t.Fatalf("got %d instances, want 2", len(instances))
	}
}

func TestGenerateResumesAfterPartialHorizon(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	req := weeklyRule(start)
	rule := env.createRule(t, req)

	countAfterCreate := len(env.instances(t, rule.ID))

	// A month later the horizon has moved; the cursor picks up exactly
	// where it stopped.
	env.clock.Advance(31 * 24 * time.Hour)
	if _, err := env.svc.Generate(ctx, recurrencedomain.GenerateRequest{UserID: env.userID, RuleID: &rule.ID}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	instances := env.instances(t, rule.ID)
	if len(instances) <= countAfterCreate {
		t.Fatalf("no new instances after horizon moved")
	}
	for i := 1; i < len(instances); i++ {
		gap := instances[i].DueDate.Sub(instances[i-1].DueDate)
		if gap != 7*24*time.Hour {
			t.Fatalf("gap between %v and %v is %v, want 168h", instances[i-1].DueDate, instances[i].DueDate, gap)
		}
	}
	reloaded := env.reload(t, rule.ID)
	if reloaded.GeneratedCount != len(instances) {
		t.Fatalf("generated_count %d, want %d", reloaded.GeneratedCount, len(instances))
	}
}

func TestGenerateForceStaysWithinHorizon(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	req := weeklyRule(start)
	req.OccurrenceLimit = 20
	rule := env.createRule(t, req)

	// Create already filled the 30 day horizon: Jan 1, 8, 15, 22, 29.
	if instances := env.instances(t, rule.ID); len(instances) != 5 {
		t.Fatalf("got %d instances after create, want 5", len(instances))
	}

	// Force does not license the walk to run out to the occurrence
	// limit; the horizon binds the same as a plain run.
	if _, err := env.svc.Generate(ctx, recurrencedomain.GenerateRequest{
		UserID:      env.userID,
		RuleID:      &rule.ID,
		HorizonDays: 7,
		Force:       true,
	}); err != nil {
		t.Fatalf("generate force: %v", err)
	}

	horizonEnd := start.AddDate(0, 0, 30)
	instances := env.instances(t, rule.ID)
	if len(instances) != 5 {
		t.Fatalf("got %d instances after force, want 5", len(instances))
	}
	for _, instance := range instances {
		if instance.DueDate.After(horizonEnd) {
			t.Fatalf("instance due %s lies past the horizon", instance.DueDate.Format("2006-01-02"))
		}
	}

	// Rewind the cursor and force a re-walk over materialized dates. The
	// unique index absorbs the collisions and the count stays put.
	if err := env.db.Model(&recurrencedomain.RecurrenceRule{}).
		Where("id = ?", rule.ID).
		Update("next_due_date", start).Error; err != nil {
		t.Fatalf("rewind cursor: %v", err)
	}
	if _, err := env.svc.Generate(ctx, recurrencedomain.GenerateRequest{
		UserID: env.userID,
		RuleID: &rule.ID,
		Force:  true,
	}); err != nil {
		t.Fatalf("generate force after rewind: %v", err)
	}
	if instances := env.instances(t, rule.ID); len(instances) != 5 {
		t.Fatalf("got %d instances after forced re-walk, want 5", len(instances))
	}
	if got := env.reload(t, rule.ID).GeneratedCount; got != 5 {
		t.Fatalf("generated_count %d, want 5", got)
	}
}

func TestSequenceContinuesAfterReconcile(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	rule := env.createRule(t, weeklyRule(start))
	// Horizon 30d from Jan 1: Jan 1, 8, 15, 22, 29.
	if got := env.reload(t, rule.ID).GeneratedCount; got != 5 {
		t.Fatalf("generated_count after create %d, want 5", got)
	}

	// Move the schedule to February. Existing January instances stay.
	newStart := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	resp, err := env.svc.Update(ctx, recurrencedomain.UpdateRuleRequest{
		UserID:    env.userID,
		ID:        rule.ID,
		StartDate: &newStart,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !resp.Rescheduled {
		t.Fatalf("start date change did not reschedule")
	}

	if _, err := env.svc.Generate(ctx, recurrencedomain.GenerateRequest{
		UserID:      env.userID,
		RuleID:      &rule.ID,
		HorizonDays: 45,
	}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	instances := env.instances(t, rule.ID)
	if len(instances) < 6 {
		t.Fatalf("got %d instances, want january batch plus february", len(instances))
	}
	for _, instance := range instances {
		if instance.DueDate.Month() == time.February && *instance.Sequence <= 5 {
			t.Fatalf("february instance got sequence %d, want continuation past 5", *instance.Sequence)
		}
	}
	januaryCount := 0
	for _, instance := range instances {
		if instance.DueDate.Month() == time.January {
			januaryCount++
		}
	}
	if januaryCount != 5 {
		t.Fatalf("january history changed: %d instances, want 5", januaryCount)
	}
}

func TestUpdatePropagationScopes(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	rule := env.createRule(t, weeklyRule(start))
	instances := env.instances(t, rule.ID)
	if len(instances) != 5 {
		t.Fatalf("got %d instances, want 5", len(instances))
	}

	// Pay the first instance, move today between the 2nd and 3rd.
	if err := env.db.Model(&transactiondomain.Transaction{}).
		Where("id = ?", instances[0].ID).
		Update("status", transactiondomain.StatusPaid).Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	env.clock.Set(time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC))

	newAmount := decimal.NewFromInt(75)
	resp, err := env.svc.Update(ctx, recurrencedomain.UpdateRuleRequest{
		UserID:           env.userID,
		ID:               rule.ID,
		Amount:           &newAmount,
		PropagationScope: recurrencedomain.PropagationScopeFuture,
	})
	if err != nil {
		t.Fatalf("update future: %v", err)
	}
	// Jan 15, 22, 29 are pending and due on or after Jan 10.
	if resp.PropagatedCount != 3 {
		t.Fatalf("future scope touched %d instances, want 3", resp.PropagatedCount)
	}

	updated := env.instances(t, rule.ID)
	for _, instance := range updated {
		switch {
		case instance.Status == transactiondomain.StatusPaid:
			if !instance.Amount.Equal(decimal.NewFromInt(50)) {
				t.Fatalf("paid instance amount changed to %s", instance.Amount)
			}
		case instance.DueDate.Before(time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)):
			if !instance.Amount.Equal(decimal.NewFromInt(50)) {
				t.Fatalf("past pending instance amount changed to %s", instance.Amount)
			}
		default:
			if !instance.Amount.Equal(newAmount) {
				t.Fatalf("future instance amount %s, want %s", instance.Amount, newAmount)
			}
		}
	}

	// ALL_PENDING rewrites the past pending one too, but never the paid.
	finalAmount := decimal.NewFromInt(90)
	resp, err = env.svc.Update(ctx, recurrencedomain.UpdateRuleRequest{
		UserID:           env.userID,
		ID:               rule.ID,
		Amount:           &finalAmount,
		PropagationScope: recurrencedomain.PropagationScopeAllPending,
	})
	if err != nil {
		t.Fatalf("update all_pending: %v", err)
	}
	if resp.PropagatedCount != 4 {
		t.Fatalf("all_pending scope touched %d instances, want 4", resp.PropagatedCount)
	}
	for _, instance := range env.instances(t, rule.ID) {
		if instance.Status == transactiondomain.StatusPaid && !instance.Amount.Equal(decimal.NewFromInt(50)) {
			t.Fatalf("paid instance amount changed to %s", instance.Amount)
		}
	}
}

func TestUpdateWithoutScopeLeavesInstancesAlone(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	rule := env.createRule(t, weeklyRule(start))
	newAmount := decimal.NewFromInt(99)
	resp, err := env.svc.Update(ctx, recurrencedomain.UpdateRuleRequest{
		UserID: env.userID,
		ID:     rule.ID,
		Amount: &newAmount,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if resp.PropagatedCount != 0 {
		t.Fatalf("propagated %d instances without a scope", resp.PropagatedCount)
	}
	for _, instance := range env.instances(t, rule.ID) {
		if !instance.Amount.Equal(decimal.NewFromInt(50)) {
			t.Fatalf("instance amount changed to %s", instance.Amount)
		}
	}
	if got := env.reload(t, rule.ID); !got.Amount.Equal(newAmount) {
		t.Fatalf("rule amount %s, want %s", got.Amount, newAmount)
	}
}

func TestDeleteModes(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	t.Run("only_recurrence detaches everything", func(t *testing.T) {
		env := newTestEnv(t, start)
		rule := env.createRule(t, weeklyRule(start))

		resp, err := env.svc.Delete(context.Background(), recurrencedomain.DeleteRuleRequest{
			UserID: env.userID,
			ID:     rule.ID,
			Mode:   recurrencedomain.DeletionModeOnlyRecurrence,
		})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if resp.InstancesDetached != 5 {
			t.Fatalf("detached %d, want 5", resp.InstancesDetached)
		}

		var orphans int64
		env.db.Model(&transactiondomain.Transaction{}).Where("rule_id IS NULL").Count(&orphans)
		if orphans != 5 {
			t.Fatalf("got %d standalone survivors, want 5", orphans)
		}
		if _, err := env.svc.Get(context.Background(), env.userID, rule.ID); !errors.Is(err, recurrencedomain.ErrRuleNotFound) {
			t.Fatalf("rule still present: %v", err)
		}
	})

	t.Run("future deletes pending future, detaches rest", func(t *testing.T) {
		env := newTestEnv(t, start)
		rule := env.createRule(t, weeklyRule(start))
		env.clock.Set(time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC))

		resp, err := env.svc.Delete(context.Background(), recurrencedomain.DeleteRuleRequest{
			UserID: env.userID,
			ID:     rule.ID,
			Mode:   recurrencedomain.DeletionModeFuture,
		})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		// Jan 15, 22, 29 deleted; Jan 1 and Jan 8 survive detached.
		if resp.InstancesDeleted != 3 {
			t.Fatalf("deleted %d, want 3", resp.InstancesDeleted)
		}
		if resp.InstancesDetached != 2 {
			t.Fatalf("detached %d, want 2", resp.InstancesDetached)
		}

		var remaining int64
		env.db.Model(&transactiondomain.Transaction{}).Count(&remaining)
		if remaining != 2 {
			t.Fatalf("got %d remaining transactions, want 2", remaining)
		}
	})

	t.Run("all removes every instance", func(t *testing.T) {
		env := newTestEnv(t, start)
		rule := env.createRule(t, weeklyRule(start))

		resp, err := env.svc.Delete(context.Background(), recurrencedomain.DeleteRuleRequest{
			UserID: env.userID,
			ID:     rule.ID,
			Mode:   recurrencedomain.DeletionModeAll,
		})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if resp.InstancesDeleted != 5 {
			t.Fatalf("deleted %d, want 5", resp.InstancesDeleted)
		}

		var remaining int64
		env.db.Model(&transactiondomain.Transaction{}).Count(&remaining)
		if remaining != 0 {
			t.Fatalf("got %d remaining transactions, want 0", remaining)
		}
	})
}

func TestCreateRejectsInvalidDefinition(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)

	req := weeklyRule(start)
	req.UserID = env.userID
	req.Interval = 0
	if _, err := env.svc.Create(context.Background(), req); !errors.Is(err, recurrencedomain.ErrInvalidInterval) {
		t.Fatalf("got %v, want ErrInvalidInterval", err)
	}

	req = weeklyRule(start)
	req.UserID = env.userID
	end := start.AddDate(0, 0, -1)
	req.EndDate = &end
	if _, err := env.svc.Create(context.Background(), req); !errors.Is(err, recurrencedomain.ErrEndBeforeStart) {
		t.Fatalf("got %v, want ErrEndBeforeStart", err)
	}
}

func TestActivateRefusesExhaustedRule(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	req := weeklyRule(start)
	req.OccurrenceLimit = 2
	rule := env.createRule(t, req)

	reloaded := env.reload(t, rule.ID)
	if reloaded.Active {
		t.Fatalf("rule with satisfied limit still active")
	}

	afterActivate, err := env.svc.Activate(ctx, env.userID, rule.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if afterActivate.Active {
		t.Fatalf("exhausted rule reactivated")
	}
}

func TestDeactivatedRuleSkippedByBulkGeneration(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	rule := env.createRule(t, weeklyRule(start))
	if _, err := env.svc.Deactivate(ctx, env.userID, rule.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	before := len(env.instances(t, rule.ID))
	env.clock.Advance(60 * 24 * time.Hour)
	if _, err := env.svc.GenerateAll(ctx); err != nil {
		t.Fatalf("generate all: %v", err)
	}
	if after := len(env.instances(t, rule.ID)); after != before {
		t.Fatalf("inactive rule generated %d new instances", after-before)
	}
}

func TestGenerateSurvivesManuallyDeletedInstance(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	rule := env.createRule(t, weeklyRule(start))
	instances := env.instances(t, rule.ID)

	// User deletes a generated instance by hand. Rescheduling re-walks
	// the date and fills the hole back in.
	if err := env.db.Delete(&transactiondomain.Transaction{}, "id = ?", instances[2].ID).Error; err != nil {
		t.Fatalf("delete instance: %v", err)
	}

	sameStart := rule.StartDate
	newInterval := 1
	if _, err := env.svc.Update(ctx, recurrencedomain.UpdateRuleRequest{
		UserID:    env.userID,
		ID:        rule.ID,
		StartDate: &sameStart,
		Interval:  &newInterval,
		Frequency: &rule.Frequency,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// No cadence field actually changed above, so nothing was
	// rescheduled. A real cadence change re-walks from the start date
	// and refills the hole.
	differentInterval := 2
	if _, err := env.svc.Update(ctx, recurrencedomain.UpdateRuleRequest{
		UserID:   env.userID,
		ID:       rule.ID,
		Interval: &differentInterval,
	}); err != nil {
		t.Fatalf("cadence update: %v", err)
	}

	after := env.instances(t, rule.ID)
	for i := 1; i < len(after); i++ {
		if after[i].DueDate.Equal(after[i-1].DueDate) {
			t.Fatalf("duplicate due date %v", after[i].DueDate)
		}
	}
}

func TestGenerateAllSurfacesStoreFailure(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	env.createRule(t, weeklyRule(start))
	env.clock.Advance(40 * 24 * time.Hour)

	// With the instance table gone every rule fails at the store level.
	// A run that makes no progress at all has to report it, so the
	// scheduler records a hard failure instead of a clean pass.
	if err := env.db.Migrator().DropTable(&transactiondomain.Transaction{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	resp, err := env.svc.GenerateAll(ctx)
	if err == nil {
		t.Fatalf("expected store failure to surface")
	}
	if resp == nil || resp.RulesFailed != 1 {
		t.Fatalf("resp %+v, want one failed rule", resp)
	}
}

func TestBoundEditKeepsCursorOnLiveRule(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	rule := env.createRule(t, weeklyRule(start))
	instances := env.instances(t, rule.ID)
	if len(instances) != 5 {
		t.Fatalf("got %d instances after create, want 5", len(instances))
	}

	// User deletes an instance by hand, then tightens the bounds. A
	// bound edit on a live rule only moves the stopping point; it must
	// not re-walk history and bring the deleted instance back.
	if err := env.db.Delete(&transactiondomain.Transaction{}, "id = ?", instances[2].ID).Error; err != nil {
		t.Fatalf("delete instance: %v", err)
	}

	endDate := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	newLimit := 50
	resp, err := env.svc.Update(ctx, recurrencedomain.UpdateRuleRequest{
		UserID:          env.userID,
		ID:              rule.ID,
		EndDate:         &endDate,
		OccurrenceLimit: &newLimit,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if resp.Rescheduled {
		t.Fatalf("bound edit on a live rule rescheduled")
	}

	after := env.instances(t, rule.ID)
	if len(after) != 4 {
		t.Fatalf("got %d instances after bound edit, want 4", len(after))
	}
	reloaded := env.reload(t, rule.ID)
	if reloaded.NextDueDate == nil || !reloaded.NextDueDate.Equal(*rule.NextDueDate) {
		t.Fatalf("cursor moved: %v, want %v", reloaded.NextDueDate, rule.NextDueDate)
	}
}

func TestBoundEditRevivesExhaustedRule(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, start)
	ctx := context.Background()

	req := weeklyRule(start)
	req.OccurrenceLimit = 2
	rule := env.createRule(t, req)
	if rule.Active {
		t.Fatalf("rule still active after hitting its limit")
	}

	// Raising the limit on an exhausted rule re-anchors the cursor so
	// generation resumes where the old bound cut it off.
	newLimit := 5
	resp, err := env.svc.Update(ctx, recurrencedomain.UpdateRuleRequest{
		UserID:          env.userID,
		ID:              rule.ID,
		OccurrenceLimit: &newLimit,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !resp.Rescheduled {
		t.Fatalf("raising the limit did not reschedule the exhausted rule")
	}

	instances := env.instances(t, rule.ID)
	if len(instances) != 5 {
		t.Fatalf("got %d instances after raising the limit, want 5", len(instances))
	}
	for i, instance := range instances {
		if instance.Sequence == nil || *instance.Sequence != i+1 {
			t.Fatalf("instance %d has sequence %v, want %d", i, instance.Sequence, i+1)
		}
	}
	if reloaded := env.reload(t, rule.ID); reloaded.Active || reloaded.GeneratedCount != 5 {
		t.Fatalf("rule active=%v count=%d, want exhausted again at 5", reloaded.Active, reloaded.GeneratedCount)
	}
}
