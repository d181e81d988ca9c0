// Package settlement implements the maker-checker payout workflow with
// daily capacity accounting against the organization's finance wallet.
package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"collectpay/internal/domain"
	"collectpay/pkg/errors"
	"collectpay/pkg/logger"
	"collectpay/pkg/validator"
)

const maxCommentLength = 125

type Service struct {
	repo     Repository
	userRepo UserRepository
	wallets  WalletStore
	notifier Notifier
	logger   logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, userRepo UserRepository, wallets WalletStore, notifier Notifier, log logger.Logger) *Service {
	return &Service{
		repo:     repo,
		userRepo: userRepo,
		wallets:  wallets,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
	}
}

type CreateRequest struct {
	RequestedBy   uuid.UUID       `json:"requested_by" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required,gt=0"`
	BankName      string          `json:"bank_name" validate:"required"`
	AccountNumber string          `json:"account_number" validate:"required"`
}

// CreateRequest opens a pending settlement for the requester's
// organization. The requested amount must fit within today's remaining
// capacity: what the finance wallet collected today minus what open or
// approved settlements already claim. A rejected request changes nothing on
// the wallet.
func (s *Service) CreateRequest(ctx context.Context, req *CreateRequest) (*domain.SettlementRequest, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, &errors.ValidationError{Field: "amount", Message: "amount must be greater than zero"}
	}
	amount := domain.Truncate(req.Amount)

	requester, err := s.userRepo.FindByID(ctx, req.RequestedBy)
	if err != nil {
		return nil, err
	}
	if requester.OrganizationID == nil {
		return nil, &errors.ValidationError{Field: "requested_by", Message: "requester has no organization"}
	}
	orgID := *requester.OrganizationID

	fw, err := s.wallets.FinanceWallet(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	usage, err := s.repo.SumTodayUsage(ctx, orgID, startOfDay)
	if err != nil {
		return nil, err
	}

	collections := fw.DailyCollected
	capacity := collections.Sub(usage)
	if capacity.IsNegative() {
		capacity = decimal.Zero
	}
	if amount.GreaterThan(capacity) {
		return nil, &errors.CapacityExceededError{
			Capacity:    capacity,
			Requested:   amount,
			Collections: collections,
			Usage:       usage,
		}
	}

	settlement := &domain.SettlementRequest{
		ID:             uuid.New(),
		OrganizationID: orgID,
		RequestedBy:    req.RequestedBy,
		Amount:         amount,
		BankName:       validator.Sanitize(req.BankName),
		AccountNumber:  validator.Sanitize(req.AccountNumber),
		Status:         domain.SettlementStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, settlement); err != nil {
		return nil, err
	}

	s.logger.Info("Settlement requested", map[string]interface{}{
		"settlement_id": settlement.ID,
		"organization":  orgID,
		"amount":        amount.String(),
		"capacity":      capacity.String(),
	})
	s.notify(ctx, req.RequestedBy, "SETTLEMENT_REQUESTED", map[string]interface{}{
		"settlement_id": settlement.ID.String(),
		"amount":        amount.String(),
	})
	return settlement, nil
}

type ReviewRequest struct {
	SettlementID uuid.UUID               `json:"settlement_id" validate:"required"`
	ReviewerID   uuid.UUID               `json:"reviewer_id" validate:"required"`
	Decision     domain.SettlementStatus `json:"decision" validate:"required"`
	Reason       domain.SettlementReason `json:"reason,omitempty"`
	Comment      string                  `json:"comment,omitempty"`
}

// Review moves a settlement through the checker side of the workflow. The
// reviewer must differ from the requester. Hold and reject require a reason
// from the closed set; reason "other" requires a comment, capped at 125
// characters. The finance wallet is debited exactly once, on the first
// transition into approved.
func (s *Service) Review(ctx context.Context, req *ReviewRequest) (*domain.SettlementRequest, error) {
	settlement, err := s.repo.FindByID(ctx, req.SettlementID)
	if err != nil {
		return nil, err
	}

	if req.ReviewerID == settlement.RequestedBy {
		return nil, &errors.ValidationError{Field: "reviewer_id", Message: "requester cannot review their own settlement"}
	}

	if !validTransition(settlement.Status, req.Decision) {
		return nil, &errors.ValidationError{
			Field:   "decision",
			Message: "cannot move settlement from " + string(settlement.Status) + " to " + string(req.Decision),
		}
	}

	req.Comment = validator.Sanitize(req.Comment)
	if len(req.Comment) > maxCommentLength {
		return nil, &errors.ValidationError{Field: "comment", Message: "comment must be 125 characters or fewer"}
	}

	needsReason := req.Decision == domain.SettlementStatusHold || req.Decision == domain.SettlementStatusRejected
	if needsReason {
		if !domain.ValidSettlementReason(req.Reason) {
			return nil, &errors.ValidationError{Field: "reason", Message: "reason must be one of the defined reason codes"}
		}
		if req.Reason == domain.ReasonOther && req.Comment == "" {
			return nil, &errors.ValidationError{Field: "comment", Message: "a comment is required for reason \"other\""}
		}
	}

	now := s.now()
	if req.Decision == domain.SettlementStatusApproved {
		// Funds leave the finance wallet on the first entry into approved,
		// whether from pending or from hold. Status change and debit commit
		// together: a failed debit leaves the settlement where it was.
		fw, err := s.wallets.FinanceWallet(ctx, settlement.OrganizationID)
		if err != nil {
			return nil, err
		}
		if err := s.repo.ApproveAndDebit(ctx, settlement.ID, settlement.Status, req.Comment, req.ReviewerID, now, fw.ID, settlement.Amount); err != nil {
			return nil, err
		}
	} else if err := s.repo.TransitionStatus(ctx, settlement.ID, settlement.Status, req.Decision, req.Reason, req.Comment, req.ReviewerID, now); err != nil {
		return nil, err
	}

	settlement.Status = req.Decision
	settlement.Reason = req.Reason
	settlement.Comment = req.Comment
	settlement.ReviewedBy = &req.ReviewerID
	settlement.ReviewedAt = &now
	settlement.UpdatedAt = now

	s.logger.Info("Settlement reviewed", map[string]interface{}{
		"settlement_id": settlement.ID,
		"decision":      req.Decision,
		"reviewer":      req.ReviewerID,
	})
	s.notify(ctx, settlement.RequestedBy, "SETTLEMENT_"+statusEvent(req.Decision), map[string]interface{}{
		"settlement_id": settlement.ID.String(),
		"amount":        settlement.Amount.String(),
		"reason":        string(req.Reason),
		"comment":       req.Comment,
	})
	return settlement, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.SettlementRequest, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*domain.SettlementRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.FindByOrganization(ctx, orgID, limit, offset)
}

func validTransition(from, to domain.SettlementStatus) bool {
	switch from {
	case domain.SettlementStatusPending:
		return to == domain.SettlementStatusApproved ||
			to == domain.SettlementStatusHold ||
			to == domain.SettlementStatusRejected
	case domain.SettlementStatusHold:
		return to == domain.SettlementStatusApproved ||
			to == domain.SettlementStatusRejected
	case domain.SettlementStatusApproved:
		return to == domain.SettlementStatusCompleted
	}
	return false
}

func statusEvent(s domain.SettlementStatus) string {
	switch s {
	case domain.SettlementStatusApproved:
		return "APPROVED"
	case domain.SettlementStatusHold:
		return "ON_HOLD"
	case domain.SettlementStatusRejected:
		return "REJECTED"
	case domain.SettlementStatusCompleted:
		return "COMPLETED"
	}
	return "UPDATED"
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
	Create(ctx context.Context, settlement *domain.SettlementRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.SettlementRequest, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.SettlementStatus, reason domain.SettlementReason, comment string, reviewedBy uuid.UUID, reviewedAt time.Time) error
	ApproveAndDebit(ctx context.Context, id uuid.UUID, from domain.SettlementStatus, comment string, reviewedBy uuid.UUID, reviewedAt time.Time, walletID uuid.UUID, amount decimal.Decimal) error
	SumTodayUsage(ctx context.Context, orgID uuid.UUID, startOfDay time.Time) (decimal.Decimal, error)
	FindByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*domain.SettlementRequest, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type WalletStore interface {
	FinanceWallet(ctx context.Context, orgID uuid.UUID) (*domain.Wallet, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error
}
