// Package limits validates transactions against organization-level ceilings
// and status gates.
package limits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collectpay/internal/domain"
	"collectpay/pkg/errors"
	"collectpay/pkg/logger"
)

type Service struct {
	orgRepo  OrganizationRepository
	userRepo UserRepository
	txRepo   TransactionRepository
	logger   logger.Logger
	now      func() time.Time
}

func NewService(orgRepo OrganizationRepository, userRepo UserRepository, txRepo TransactionRepository, log logger.Logger) *Service {
	return &Service{
		orgRepo:  orgRepo,
		userRepo: userRepo,
		txRepo:   txRepo,
		logger:   log,
		now:      time.Now,
	}
}

// Validate checks the user's organization gates and ceilings for a proposed
// amount. The usage snapshot is returned on success and denial alike so
// callers can always explain the decision.
func (s *Service) Validate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*errors.UsageSnapshot, error) {
	amount = domain.Truncate(amount)

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.OrganizationID == nil {
		return nil, &errors.ValidationError{Field: "organization", Message: "user has no organization"}
	}

	org, err := s.orgRepo.FindByID(ctx, *user.OrganizationID)
	if err != nil {
		return nil, err
	}

	if org.Status != domain.OrganizationStatusApproved {
		return nil, &errors.ValidationError{Field: "organization", Message: "organization is not approved"}
	}
	if !org.IsActive {
		return nil, &errors.ValidationError{Field: "organization", Message: "organization is not active"}
	}
	if !org.KYCVerified {
		return nil, &errors.ValidationError{Field: "organization", Message: "organization KYC verification required"}
	}

	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	dailyUsed, err := s.txRepo.SumOrgVolume(ctx, org.ID, startOfDay)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute daily usage")
	}
	monthlyUsed, err := s.txRepo.SumOrgVolume(ctx, org.ID, startOfMonth)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute monthly usage")
	}

	snapshot := &errors.UsageSnapshot{
		DailyUsed:    dailyUsed,
		DailyLimit:   org.DailyLimit,
		MonthlyUsed:  monthlyUsed,
		MonthlyLimit: org.MonthlyLimit,
	}

	if amount.GreaterThan(org.SingleTxLimit) {
		return snapshot, &errors.LimitExceededError{
			Scope:     errors.LimitScopeSingle,
			Message:   fmt.Sprintf("amount %s exceeds single-transaction limit of %s", amount.String(), org.SingleTxLimit.String()),
			Remaining: org.SingleTxLimit,
			Snapshot:  snapshot,
		}
	}
	if dailyUsed.Add(amount).GreaterThan(org.DailyLimit) {
		return snapshot, &errors.LimitExceededError{
			Scope:     errors.LimitScopeDaily,
			Message:   fmt.Sprintf("amount %s would exceed daily limit of %s (used %s)", amount.String(), org.DailyLimit.String(), dailyUsed.String()),
			Remaining: org.DailyLimit.Sub(dailyUsed),
			Snapshot:  snapshot,
		}
	}
	if monthlyUsed.Add(amount).GreaterThan(org.MonthlyLimit) {
		return snapshot, &errors.LimitExceededError{
			Scope:     errors.LimitScopeMonthly,
			Message:   fmt.Sprintf("amount %s would exceed monthly limit of %s (used %s)", amount.String(), org.MonthlyLimit.String(), monthlyUsed.String()),
			Remaining: org.MonthlyLimit.Sub(monthlyUsed),
			Snapshot:  snapshot,
		}
	}

	return snapshot, nil
}

type OrganizationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type TransactionRepository interface {
	SumOrgVolume(ctx context.Context, orgID uuid.UUID, since time.Time) (decimal.Decimal, error)
}
