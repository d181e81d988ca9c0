// Package wallet implements per-user balance bookkeeping with rolling daily
// counters and calendar-based resets.
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collectpay/internal/domain"
	"collectpay/pkg/config"
	"collectpay/pkg/errors"
	"collectpay/pkg/logger"
)

type Service struct {
	repo     Repository
	userRepo UserRepository
	logger   logger.Logger
	limits   config.LimitsConfig
	now      func() time.Time
}

func NewService(repo Repository, userRepo UserRepository, limits config.LimitsConfig, log logger.Logger) *Service {
	return &Service{
		repo:     repo,
		userRepo: userRepo,
		logger:   log,
		limits:   limits,
		now:      time.Now,
	}
}

// GetOrCreateWallet returns the user's wallet, creating a zero-balance one on
// first access. Access also runs the lazy daily-reset check.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err == errors.ErrWalletNotFound {
		now := s.now()
		wallet = &domain.Wallet{
			ID:               uuid.New(),
			UserID:           userID,
			Balance:          decimal.Zero,
			DailyCollected:   decimal.Zero,
			DailyTransferred: decimal.Zero,
			LastResetDate:    now,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repo.Create(ctx, wallet); err != nil {
			return nil, err
		}
		s.logger.Info("Wallet created", map[string]interface{}{
			"wallet_id": wallet.ID,
			"user_id":   userID,
		})
		return wallet, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.CheckAndResetDailySpending(ctx, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// CheckAndResetDailySpending resets role-specific counters when the calendar
// date of the last reset differs from today. Elapsed hours are irrelevant: a
// wallet reset at 23:59 resets again one minute later.
func (s *Service) CheckAndResetDailySpending(ctx context.Context, wallet *domain.Wallet) error {
	now := s.now()
	if domain.SameCalendarDate(wallet.LastResetDate, now) {
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, wallet.UserID)
	if err != nil {
		return err
	}

	if err := s.repo.ResetDailyCounters(ctx, wallet.ID, user.Role, now); err != nil {
		return err
	}

	switch user.Role {
	case domain.RoleMerchant:
		wallet.Balance = decimal.Zero
		wallet.DailyCollected = decimal.Zero
	case domain.RoleCashier:
		wallet.DailyTransferred = decimal.Zero
	case domain.RoleFinance:
		// Settlement capacity reads this counter as today's collections;
		// the balance stays until it is settled out.
		wallet.DailyCollected = decimal.Zero
	}
	wallet.LastResetDate = now

	s.logger.Info("Daily counters reset", map[string]interface{}{
		"wallet_id": wallet.ID,
		"user_id":   wallet.UserID,
		"role":      user.Role,
	})
	return nil
}

// SweepDailyResets resets counters for dormant wallets that have not been
// touched since the last date boundary.
func (s *Service) SweepDailyResets(ctx context.Context) error {
	stale, err := s.repo.FindStale(ctx, s.now())
	if err != nil {
		return err
	}
	for _, w := range stale {
		if err := s.CheckAndResetDailySpending(ctx, w); err != nil {
			s.logger.Error("Failed to reset dormant wallet", map[string]interface{}{
				"wallet_id": w.ID,
				"error":     err.Error(),
			})
		}
	}
	return nil
}

// ApplyCompletedTransaction posts the balance effects of a completed
// transaction. A merchant collection is a two-leg posting: the merchant leg
// and the organization's finance-role leg are applied as one logical unit of
// work. Callers must not invoke this twice for the same transaction id; the
// state machine's exactly-once transition is the guard.
func (s *Service) ApplyCompletedTransaction(ctx context.Context, userID, txID uuid.UUID, amount decimal.Decimal, role domain.Role) error {
	amount = domain.Truncate(amount)

	wallet, err := s.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return err
	}
	if !wallet.IsActive {
		return errors.ErrWalletInactive
	}

	switch role {
	case domain.RoleMerchant:
		user, err := s.userRepo.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.OrganizationID == nil {
			return &errors.ValidationError{Field: "organization", Message: "merchant has no organization"}
		}
		finance, err := s.userRepo.FindByOrganizationAndRole(ctx, *user.OrganizationID, domain.RoleFinance)
		if err != nil {
			return errors.Wrap(err, "organization finance wallet unavailable")
		}
		financeWallet, err := s.GetOrCreateWallet(ctx, finance.ID)
		if err != nil {
			return err
		}
		if err := s.repo.PostCollection(ctx, wallet.ID, financeWallet.ID, amount); err != nil {
			return err
		}
		s.logger.Info("Collection posted", map[string]interface{}{
			"transaction_id":  txID,
			"merchant_wallet": wallet.ID,
			"finance_wallet":  financeWallet.ID,
			"amount":          amount.String(),
		})
		return nil

	case domain.RoleCashier:
		if err := s.repo.PostTransfer(ctx, wallet.ID, amount); err != nil {
			return err
		}
		s.logger.Info("Transfer posted", map[string]interface{}{
			"transaction_id": txID,
			"cashier_wallet": wallet.ID,
			"amount":         amount.String(),
		})
		return nil
	}

	// Finance and admin balances move only through settlement.
	return nil
}

// FinanceWallet returns the organization's fan-in wallet, the one held by
// its finance-role user.
func (s *Service) FinanceWallet(ctx context.Context, orgID uuid.UUID) (*domain.Wallet, error) {
	finance, err := s.userRepo.FindByOrganizationAndRole(ctx, orgID, domain.RoleFinance)
	if err != nil {
		return nil, errors.Wrap(err, "organization finance wallet unavailable")
	}
	return s.GetOrCreateWallet(ctx, finance.ID)
}

// LimitCheck reports whether a transfer is allowed and the remaining
// headroom for the day.
type LimitCheck struct {
	Allowed   bool            `json:"allowed"`
	Message   string          `json:"message"`
	Remaining decimal.Decimal `json:"remaining"`
}

// CheckTransferLimits enforces the fixed per-role daily ceilings.
func (s *Service) CheckTransferLimits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*LimitCheck, error) {
	amount = domain.Truncate(amount)

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch user.Role {
	case domain.RoleCashier:
		ceiling := decimal.NewFromInt(s.limits.CashierDailyTransfer)
		remaining := ceiling.Sub(wallet.DailyTransferred)
		if wallet.Balance.LessThan(amount) {
			return &LimitCheck{
				Allowed:   false,
				Message:   fmt.Sprintf("insufficient balance: have %s, need %s", wallet.Balance.String(), amount.String()),
				Remaining: remaining,
			}, nil
		}
		if wallet.DailyTransferred.Add(amount).GreaterThan(ceiling) {
			return &LimitCheck{
				Allowed:   false,
				Message:   fmt.Sprintf("daily transfer limit reached: %s remaining today", remaining.String()),
				Remaining: remaining,
			}, nil
		}
		return &LimitCheck{
			Allowed:   true,
			Message:   fmt.Sprintf("%s remaining today", remaining.Sub(amount).String()),
			Remaining: remaining.Sub(amount),
		}, nil

	case domain.RoleMerchant:
		ceiling := decimal.NewFromInt(s.limits.MerchantDailyCollection)
		remaining := ceiling.Sub(wallet.DailyCollected)
		if wallet.DailyCollected.Add(amount).GreaterThan(ceiling) {
			return &LimitCheck{
				Allowed:   false,
				Message:   fmt.Sprintf("daily collection limit reached: %s remaining today", remaining.String()),
				Remaining: remaining,
			}, nil
		}
		return &LimitCheck{
			Allowed:   true,
			Message:   fmt.Sprintf("%s remaining today", remaining.Sub(amount).String()),
			Remaining: remaining.Sub(amount),
		}, nil
	}

	return &LimitCheck{Allowed: true, Remaining: decimal.Zero}, nil
}

// Repository interfaces
type Repository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	ResetDailyCounters(ctx context.Context, walletID uuid.UUID, role domain.Role, resetDate time.Time) error
	FindStale(ctx context.Context, date time.Time) ([]*domain.Wallet, error)
	PostCollection(ctx context.Context, merchantWalletID, financeWalletID uuid.UUID, amount decimal.Decimal) error
	PostTransfer(ctx context.Context, cashierWalletID uuid.UUID, amount decimal.Decimal) error
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByOrganizationAndRole(ctx context.Context, orgID uuid.UUID, role domain.Role) (*domain.User, error)
}
