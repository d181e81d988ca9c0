// Package transaction implements the pending/completed/rejected lifecycle
// with single-flight-per-sender and time-boxed expiry.
package transaction

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collectpay/internal/aml"
	"collectpay/internal/domain"
	"collectpay/internal/wallet"
	"collectpay/pkg/config"
	"collectpay/pkg/errors"
	"collectpay/pkg/logger"
	"collectpay/pkg/validator"
)

const expiredPendingBatch = 100

type Service struct {
	repo     Repository
	userRepo UserRepository
	wallets  WalletStore
	limits   LimitValidator
	monitor  AmlMonitor
	notifier Notifier
	logger   logger.Logger
	limitCfg config.LimitsConfig
	now      func() time.Time
}

func NewService(
	repo Repository,
	userRepo UserRepository,
	wallets WalletStore,
	limits LimitValidator,
	monitor AmlMonitor,
	notifier Notifier,
	limitCfg config.LimitsConfig,
	log logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		userRepo: userRepo,
		wallets:  wallets,
		limits:   limits,
		monitor:  monitor,
		notifier: notifier,
		logger:   log,
		limitCfg: limitCfg,
		now:      time.Now,
	}
}

type CreateRequest struct {
	FromUserID  uuid.UUID              `json:"from_user_id" validate:"required"`
	ToUserID    *uuid.UUID             `json:"to_user_id"`
	Amount      decimal.Decimal        `json:"amount" validate:"required,gt=0"`
	Type        domain.TransactionType `json:"type" validate:"required"`
	Description string                 `json:"description"`
}

// Create validates a transaction through the limit validator and AML monitor,
// then persists it as pending with a 120-second confirmation window. A sender
// with a live pending transaction gets DuplicatePendingError. When a
// high-risk AML alert fires on an auto-completing type, the transaction is
// still persisted pending and an AmlHoldError is returned alongside it so the
// caller can explain the hold.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*domain.Transaction, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, &errors.ValidationError{Field: "amount", Message: "amount must be greater than zero"}
	}
	amount := domain.Truncate(req.Amount)
	req.Description = validator.Sanitize(req.Description)

	now := s.now()

	// Single-flight: at most one live pending transaction per sender.
	if existing, err := s.repo.FindLivePending(ctx, req.FromUserID, now); err == nil {
		return nil, &errors.DuplicatePendingError{Reference: existing.Reference}
	} else if err != errors.ErrTransactionNotFound {
		return nil, err
	}

	// An expired row the sweep has not reached yet still occupies the
	// sender's slot at the storage layer; clear it before inserting.
	if err := s.repo.ReleaseExpiredPending(ctx, req.FromUserID, now); err != nil {
		return nil, err
	}

	if _, err := s.limits.Validate(ctx, req.FromUserID, amount); err != nil {
		return nil, err
	}

	check, err := s.wallets.CheckTransferLimits(ctx, req.FromUserID, amount)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		scope := errors.LimitScopeCollection
		if req.Type == domain.TransactionTypeTransfer {
			scope = errors.LimitScopeTransfer
		}
		return nil, &errors.LimitExceededError{
			Scope:     scope,
			Message:   check.Message,
			Remaining: check.Remaining,
		}
	}

	alerts, err := s.monitor.CheckTransaction(ctx, req.FromUserID, amount)
	if err != nil {
		return nil, errors.Wrap(err, "aml check failed")
	}

	reference, err := s.allocateReference(ctx)
	if err != nil {
		return nil, err
	}

	// A held transaction waits for a human, not the expiry sweep: it is
	// persisted without a window so MarkExpired cannot auto-reject it.
	held := aml.RequiresManualReview(alerts)
	var expiresAt *time.Time
	if !held {
		e := now.Add(s.limitCfg.TransactionTTL)
		expiresAt = &e
	}
	tx := &domain.Transaction{
		ID:          uuid.New(),
		Reference:   reference,
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		Amount:      amount,
		Type:        req.Type,
		Status:      domain.TransactionStatusPending,
		Description: req.Description,
		ExpiresAt:   expiresAt,
		Priority:    domain.PriorityFor(amount),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, tx); err != nil {
		if dup, ok := err.(*errors.DuplicatePendingError); ok {
			// Lost the race between the existence check and the insert;
			// the storage-layer unique index caught it.
			return nil, dup
		}
		s.logger.Error("Transaction create failed", map[string]interface{}{
			"error":     err.Error(),
			"reference": tx.Reference,
			"from_user": tx.FromUserID,
			"amount":    tx.Amount.String(),
		})
		return nil, err
	}

	s.logger.Info("Transaction created", map[string]interface{}{
		"transaction_id": tx.ID,
		"reference":      tx.Reference,
		"type":           tx.Type,
		"amount":         tx.Amount.String(),
	})

	if held {
		reasons := make([]string, len(alerts))
		for i, a := range alerts {
			reasons[i] = a.Message
		}
		s.notify(ctx, req.FromUserID, "TRANSACTION_HELD", map[string]interface{}{
			"reference": tx.Reference,
			"reason":    "transaction flagged for manual review",
		})
		return tx, &errors.AmlHoldError{RiskScore: aml.MaxScore(alerts), Reasons: reasons}
	}

	// Transfers auto-complete once risk checks pass; collections wait for a
	// QR confirmation.
	if req.Type == domain.TransactionTypeTransfer {
		if err := s.UpdateStatus(ctx, tx.ID, domain.TransactionStatusCompleted, "", nil); err != nil {
			return nil, err
		}
		tx.Status = domain.TransactionStatusCompleted
	}

	return tx, nil
}

// UpdateStatus moves a pending transaction to completed or rejected. On
// completion, balance effects are applied for both parties; the exactly-once
// repository transition guards against double-counting, and a sender that
// equals the receiver gets a single posting.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, reason string, processedBy *uuid.UUID) error {
	if status != domain.TransactionStatusCompleted && status != domain.TransactionStatusRejected {
		return &errors.ValidationError{Field: "status", Message: fmt.Sprintf("invalid target status %q", status)}
	}

	tx, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if tx.Status != domain.TransactionStatusPending {
		return &errors.ValidationError{Field: "status", Message: "only pending transactions can transition"}
	}

	now := s.now()
	var completedAt *time.Time
	if status == domain.TransactionStatusCompleted {
		completedAt = &now
	}

	if err := s.repo.TransitionStatus(ctx, id, status, reason, processedBy, completedAt); err != nil {
		return err
	}

	if status == domain.TransactionStatusCompleted {
		sender, err := s.userRepo.FindByID(ctx, tx.FromUserID)
		if err != nil {
			return err
		}
		if err := s.wallets.ApplyCompletedTransaction(ctx, tx.FromUserID, tx.ID, tx.Amount, sender.Role); err != nil {
			return errors.Wrap(err, "failed to post sender leg")
		}

		if tx.ToUserID != nil && *tx.ToUserID != tx.FromUserID {
			receiver, err := s.userRepo.FindByID(ctx, *tx.ToUserID)
			if err != nil {
				return err
			}
			if err := s.wallets.ApplyCompletedTransaction(ctx, *tx.ToUserID, tx.ID, tx.Amount, receiver.Role); err != nil {
				return errors.Wrap(err, "failed to post receiver leg")
			}
		}
	}

	s.logger.Info("Transaction status updated", map[string]interface{}{
		"transaction_id": id,
		"status":         status,
		"reason":         reason,
	})
	return nil
}

// MarkExpired batch-rejects pending transactions past their window with
// reason "timed out". A transaction with any attached document stays pending
// for manual handling; the sweep parks it by clearing its expiry so the
// sender's single-flight slot frees up.
func (s *Service) MarkExpired(ctx context.Context) error {
	expired, err := s.repo.FindExpiredPending(ctx, s.now(), expiredPendingBatch)
	if err != nil {
		return err
	}

	rejected, parked := 0, 0
	for _, tx := range expired {
		if tx.DocumentCount > 0 {
			if err := s.repo.ClearExpiry(ctx, tx.ID); err != nil {
				s.logger.Error("Failed to park document-backed transaction", map[string]interface{}{
					"transaction_id": tx.ID,
					"error":          err.Error(),
				})
				continue
			}
			parked++
			continue
		}
		if err := s.repo.TransitionStatus(ctx, tx.ID, domain.TransactionStatusRejected, "timed out", nil, nil); err != nil {
			s.logger.Error("Failed to expire transaction", map[string]interface{}{
				"transaction_id": tx.ID,
				"error":          err.Error(),
			})
			continue
		}
		rejected++
	}

	if rejected > 0 || parked > 0 {
		s.logger.Info("Expiry sweep finished", map[string]interface{}{
			"rejected": rejected,
			"parked":   parked,
		})
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	return s.repo.FindByReference(ctx, ref)
}

// allocateReference generates a human-readable reference and retries until
// it does not collide with an existing row.
func (s *Service) allocateReference(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		ref := fmt.Sprintf("TXN-%s-%04d", s.now().Format("20060102"), rand.Intn(10000))
		exists, err := s.repo.ReferenceExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
	}
	// Collision-heavy day; fall back to a reference that cannot collide.
	return fmt.Sprintf("TXN-%s-%s", s.now().Format("20060102"), uuid.New().String()[:8]), nil
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, eventType, data); err != nil {
		s.logger.Error("Failed to send notification", map[string]interface{}{
			"user_id": userID,
			"event":   eventType,
			"error":   err.Error(),
		})
	}
}

// Repository interfaces
type Repository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	FindByReference(ctx context.Context, ref string) (*domain.Transaction, error)
	FindLivePending(ctx context.Context, fromUserID uuid.UUID, now time.Time) (*domain.Transaction, error)
	ReferenceExists(ctx context.Context, ref string) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, reason string, processedBy *uuid.UUID, completedAt *time.Time) error
	ClearExpiry(ctx context.Context, id uuid.UUID) error
	ReleaseExpiredPending(ctx context.Context, fromUserID uuid.UUID, now time.Time) error
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type WalletStore interface {
	ApplyCompletedTransaction(ctx context.Context, userID, txID uuid.UUID, amount decimal.Decimal, role domain.Role) error
	CheckTransferLimits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*wallet.LimitCheck, error)
}

type LimitValidator interface {
	Validate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*errors.UsageSnapshot, error)
}

type AmlMonitor interface {
	CheckTransaction(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) ([]aml.Alert, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error
}
