// Package aml runs threshold and velocity rules over proposed transactions.
package aml

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collectpay/internal/domain"
	"collectpay/pkg/config"
	"collectpay/pkg/logger"
)

// ManualReviewScore is the risk score at or above which an alert forces an
// otherwise-auto-completing transaction back to pending for manual review.
const ManualReviewScore = 70

// Alert is a single rule hit with its risk score in [0,100].
type Alert struct {
	Rule      string `json:"rule"`
	RiskScore int    `json:"risk_score"`
	Message   string `json:"message"`
}

type Service struct {
	txRepo   TransactionRepository
	userRepo UserRepository
	orgRepo  OrganizationRepository
	cfg      config.AMLConfig
	logger   logger.Logger
	now      func() time.Time
}

func NewService(txRepo TransactionRepository, userRepo UserRepository, orgRepo OrganizationRepository, cfg config.AMLConfig, log logger.Logger) *Service {
	return &Service{
		txRepo:   txRepo,
		userRepo: userRepo,
		orgRepo:  orgRepo,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
}

// CheckTransaction evaluates the configured rules for a proposed amount and
// returns the alerts they raise. An empty slice means no findings.
func (s *Service) CheckTransaction(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) ([]Alert, error) {
	amount = domain.Truncate(amount)
	var alerts []Alert

	if amount.GreaterThanOrEqual(decimal.NewFromInt(s.cfg.LargeAmountThreshold)) {
		alerts = append(alerts, Alert{
			Rule:      "large_amount",
			RiskScore: 75,
			Message:   fmt.Sprintf("amount %s meets the large-amount threshold of %d", amount.String(), s.cfg.LargeAmountThreshold),
		})
	} else if amount.GreaterThanOrEqual(decimal.NewFromInt(s.cfg.ReportingThreshold)) {
		alerts = append(alerts, Alert{
			Rule:      "reporting_threshold",
			RiskScore: 55,
			Message:   fmt.Sprintf("amount %s meets the reporting threshold of %d", amount.String(), s.cfg.ReportingThreshold),
		})
	}

	now := s.now()

	dailyCount, err := s.txRepo.CountRecentByUser(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if dailyCount >= s.cfg.MaxDailyCount {
		alerts = append(alerts, Alert{
			Rule:      "daily_velocity",
			RiskScore: 70,
			Message:   fmt.Sprintf("%d transactions in the last 24 hours (limit %d)", dailyCount, s.cfg.MaxDailyCount),
		})
	}

	rapidCount, err := s.txRepo.CountRecentByUser(ctx, userID, now.Add(-s.cfg.RapidWindow))
	if err != nil {
		return nil, err
	}
	if rapidCount >= s.cfg.RapidCount {
		alerts = append(alerts, Alert{
			Rule:      "rapid_succession",
			RiskScore: 65,
			Message:   fmt.Sprintf("%d transactions within %s", rapidCount, s.cfg.RapidWindow),
		})
	}

	if len(alerts) > 0 {
		// Risk rating inherited from the organization bumps every alert.
		if bump := s.organizationRiskBump(ctx, userID); bump > 0 {
			for i := range alerts {
				alerts[i].RiskScore += bump
				if alerts[i].RiskScore > 100 {
					alerts[i].RiskScore = 100
				}
			}
		}

		s.logger.Warn("AML alerts raised", map[string]interface{}{
			"user_id": userID,
			"amount":  amount.String(),
			"count":   len(alerts),
		})
	}

	return alerts, nil
}

// RequiresManualReview reports whether any alert crosses the review score.
func RequiresManualReview(alerts []Alert) bool {
	for _, a := range alerts {
		if a.RiskScore >= ManualReviewScore {
			return true
		}
	}
	return false
}

// MaxScore returns the highest risk score among the alerts, 0 if none.
func MaxScore(alerts []Alert) int {
	max := 0
	for _, a := range alerts {
		if a.RiskScore > max {
			max = a.RiskScore
		}
	}
	return max
}

func (s *Service) organizationRiskBump(ctx context.Context, userID uuid.UUID) int {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil || user.OrganizationID == nil {
		return 0
	}
	org, err := s.orgRepo.FindByID(ctx, *user.OrganizationID)
	if err != nil {
		return 0
	}
	switch org.RiskRating {
	case domain.RiskRatingHigh:
		return 20
	case domain.RiskRatingMedium:
		return 10
	}
	return 0
}

type TransactionRepository interface {
	CountRecentByUser(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type OrganizationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
}
