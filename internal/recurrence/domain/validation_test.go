package domain

import (
	"errors"
	"testing"
	"time"

	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	"github.com/shopspring/decimal"
)

func validRule() *RecurrenceRule {
	return &RecurrenceRule{
		Title:     "Rent",
		Amount:    decimal.NewFromInt(1200),
		Direction: transactiondomain.DirectionDebit,
		Frequency: FrequencyMonthly,
		Interval:  1,
		StartDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidateAcceptsValidRule(t *testing.T) {
	if err := validRule().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RecurrenceRule)
		want   error
	}{
		{"empty title", func(r *RecurrenceRule) { r.Title = "  " }, ErrTitleRequired},
		{"zero amount", func(r *RecurrenceRule) { r.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(r *RecurrenceRule) { r.Amount = decimal.NewFromInt(-5) }, ErrInvalidAmount},
		{"bad direction", func(r *RecurrenceRule) { r.Direction = "SIDEWAYS" }, ErrInvalidDirection},
		{"bad frequency", func(r *RecurrenceRule) { r.Frequency = "DAILY" }, ErrInvalidFrequency},
		{"zero interval", func(r *RecurrenceRule) { r.Interval = 0 }, ErrInvalidInterval},
		{"negative limit", func(r *RecurrenceRule) { r.OccurrenceLimit = -1 }, ErrInvalidOccurrenceLimit},
		{"end before start", func(r *RecurrenceRule) {
			end := r.StartDate.AddDate(0, 0, -1)
			r.EndDate = &end
		}, ErrEndBeforeStart},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := validRule()
			tc.mutate(rule)
			if err := rule.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParsePropagationScope(t *testing.T) {
	if scope, err := ParsePropagationScope(""); err != nil || scope != PropagationScopeNone {
		t.Fatalf("empty scope: got %v, %v", scope, err)
	}
	if scope, err := ParsePropagationScope("future"); err != nil || scope != PropagationScopeFuture {
		t.Fatalf("future scope: got %v, %v", scope, err)
	}
	if scope, err := ParsePropagationScope("ALL_PENDING"); err != nil || scope != PropagationScopeAllPending {
		t.Fatalf("all_pending scope: got %v, %v", scope, err)
	}
	if _, err := ParsePropagationScope("EVERYTHING"); !errors.Is(err, ErrInvalidPropagationScope) {
		t.Fatalf("bad scope: got %v", err)
	}
}

func TestParseDeletionMode(t *testing.T) {
	if mode, err := ParseDeletionMode(""); err != nil || mode != DeletionModeOnlyRecurrence {
		t.Fatalf("empty mode: got %v, %v", mode, err)
	}
	if mode, err := ParseDeletionMode("future"); err != nil || mode != DeletionModeFuture {
		t.Fatalf("future mode: got %v, %v", mode, err)
	}
	if mode, err := ParseDeletionMode("all"); err != nil || mode != DeletionModeAll {
		t.Fatalf("all mode: got %v, %v", mode, err)
	}
	if _, err := ParseDeletionMode("SOME"); !errors.Is(err, ErrInvalidDeletionMode) {
		t.Fatalf("bad mode: got %v", err)
	}
}
