package notification

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/plinio-cardoso/financeiro/internal/clock"
	"github.com/plinio-cardoso/financeiro/internal/config"
	"github.com/plinio-cardoso/financeiro/internal/observability/metrics"
	"github.com/plinio-cardoso/financeiro/internal/providers/email"
	transactiondomain "github.com/plinio-cardoso/financeiro/internal/transaction/domain"
	userdomain "github.com/plinio-cardoso/financeiro/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service sends due-date reminders for pending transactions. Each
// transaction is reminded at most once; the reminded_at stamp is what
// keeps a rerun from mailing twice.
type Service interface {
	SendDueReminders(ctx context.Context, batchSize int) (int, error)
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Config   *config.GenerationConfigHolder
	TxRepo   transactiondomain.Repository
	UserRepo userdomain.Repository
	Email    email.Provider
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	config   *config.GenerationConfigHolder
	txRepo   transactiondomain.Repository
	userRepo userdomain.Repository
	email    email.Provider
}

func NewService(p ServiceParam) Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("notification.service"),
		clock:    p.Clock,
		config:   p.Config,
		txRepo:   p.TxRepo,
		userRepo: p.UserRepo,
		email:    p.Email,
	}
}

func (s *service) SendDueReminders(ctx context.Context, batchSize int) (int, error) {
	cfg := s.config.Get()
	today := clock.Today(s.clock)
	windowEnd := today.AddDate(0, 0, cfg.UpcomingReminderDays)

	// With overdue reminders off the floor keeps overdue rows out of the
	// batch entirely; skipping them after the fetch would let them crowd
	// out upcoming ones, since they sort first and are never stamped.
	var windowStart *time.Time
	if !cfg.OverdueReminders {
		windowStart = &today
	}

	candidates, err := s.txRepo.ListReminderCandidates(ctx, s.db, windowStart, windowEnd, batchSize)
	if err != nil {
		return 0, err
	}

	users := map[snowflake.ID]*userdomain.User{}
	var sent []snowflake.ID
	var errs error
	for _, candidate := range candidates {
		overdue := candidate.DueDate.Before(today)

		user, ok := users[candidate.UserID]
		if !ok {
			user, err = s.userRepo.FindByID(ctx, candidate.UserID)
			if err != nil {
				errs = errors.Join(errs, err)
				continue
			}
			users[candidate.UserID] = user
		}

		if err := s.sendReminder(ctx, user, candidate, overdue); err != nil {
			errs = errors.Join(errs, err)
			s.log.Warn("reminder failed",
				zap.String("transaction_id", candidate.ID.String()),
				zap.Error(err),
			)
			continue
		}
		sent = append(sent, candidate.ID)
	}

	if len(sent) > 0 {
		if err := s.txRepo.MarkReminded(ctx, s.db, sent, s.clock.Now()); err != nil {
			errs = errors.Join(errs, err)
		}
		metrics.Scheduler().AddRemindersSent(len(sent))
	}
	return len(sent), errs
}

func (s *service) sendReminder(ctx context.Context, user *userdomain.User, transaction transactiondomain.Transaction, overdue bool) error {
	subject := "Upcoming payment: " + transaction.Title
	if overdue {
		subject = "Overdue payment: " + transaction.Title
	}
	return s.email.SendTemplate(ctx, []string{user.Email}, "transaction_due", map[string]any{
		"subject":   subject,
		"user_name": user.Name,
		"title":     transaction.Title,
		"amount":    transaction.Amount.StringFixed(2),
		"due_date":  transaction.DueDate.Format("2006-01-02"),
		"overdue":   overdue,
	})
}
