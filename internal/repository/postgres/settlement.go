package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"collectpay/internal/domain"
	"collectpay/pkg/errors"
)

type SettlementRepository struct {
	db *sqlx.DB
}

func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, req *domain.SettlementRequest) error {
	query := `
		INSERT INTO settlement_requests (
			id, organization_id, requested_by, amount, bank_name, account_number,
			status, reason, comment, reviewed_by, reviewed_at, created_at, updated_at
		) VALUES (
			:id, :organization_id, :requested_by, :amount, :bank_name, :account_number,
			:status, :reason, :comment, :reviewed_by, :reviewed_at, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, req)
	return errors.Wrap(err, "failed to create settlement request")
}

func (r *SettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.SettlementRequest, error) {
	req := &domain.SettlementRequest{}
	query := `SELECT * FROM settlement_requests WHERE id = $1`
	err := r.db.GetContext(ctx, req, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrSettlementNotFound
		}
		return nil, errors.Wrap(err, "failed to find settlement request")
	}
	return req, nil
}

// TransitionStatus moves a request between review states. The from-status
// guard keeps the maker-checker transition exactly-once.
func (r *SettlementRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.SettlementStatus, reason domain.SettlementReason, comment string, reviewedBy uuid.UUID, reviewedAt time.Time) error {
	query := `
		UPDATE settlement_requests SET
			status = $1, reason = $2, comment = $3,
			reviewed_by = $4, reviewed_at = $5, updated_at = NOW()
		WHERE id = $6 AND status = $7
	`
	result, err := r.db.ExecContext(ctx, query, to, reason, comment, reviewedBy, reviewedAt, id, from)
	if err != nil {
		return errors.Wrap(err, "failed to transition settlement status")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrSettlementNotFound
	}
	return nil
}

// ApproveAndDebit commits the transition into approved and the finance
// wallet debit as one database transaction, so a settlement can never end up
// approved with its funds still unencumbered. The balance guard on the
// wallet leg keeps the counter non-negative; zero rows there rolls the
// status change back.
func (r *SettlementRepository) ApproveAndDebit(ctx context.Context, id uuid.UUID, from domain.SettlementStatus, comment string, reviewedBy uuid.UUID, reviewedAt time.Time, walletID uuid.UUID, amount decimal.Decimal) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to begin settlement approval")
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE settlement_requests SET
			status = $1, reason = '', comment = $2,
			reviewed_by = $3, reviewed_at = $4, updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, domain.SettlementStatusApproved, comment, reviewedBy, reviewedAt, id, from)
	if err != nil {
		return errors.Wrap(err, "failed to approve settlement")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrSettlementNotFound
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance = balance - $1,
			updated_at = NOW()
		WHERE id = $2 AND is_active = true AND balance >= $1
	`, amount, walletID)
	if err != nil {
		return errors.Wrap(err, "failed to debit finance wallet")
	}
	rows, err = result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		var active bool
		if err := tx.GetContext(ctx, &active, `SELECT is_active FROM wallets WHERE id = $1`, walletID); err == nil && !active {
			return errors.ErrWalletInactive
		}
		return errors.ErrInsufficientBalance
	}

	return errors.Wrap(tx.Commit(), "failed to commit settlement approval")
}

// SumTodayUsage sums amounts of the organization's settlement requests
// created today in the in-flight-or-spent status set.
func (r *SettlementRepository) SumTodayUsage(ctx context.Context, orgID uuid.UUID, startOfDay time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM settlement_requests
		WHERE organization_id = $1
		  AND created_at >= $2
		  AND status IN ('pending', 'hold', 'approved', 'completed')
	`
	err := r.db.GetContext(ctx, &total, query, orgID, startOfDay)
	return total, errors.Wrap(err, "failed to sum settlement usage")
}

func (r *SettlementRepository) FindByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*domain.SettlementRequest, error) {
	var reqs []*domain.SettlementRequest
	query := `
		SELECT * FROM settlement_requests
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &reqs, query, orgID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find settlement requests")
	}
	return reqs, nil
}

type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, event_type, subject, body, created_at)
		VALUES (:id, :user_id, :event_type, :subject, :body, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, n)
	return errors.Wrap(err, "failed to create notification")
}

func (r *NotificationRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error) {
	var ns []*domain.Notification
	query := `SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	err := r.db.SelectContext(ctx, &ns, query, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find notifications")
	}
	return ns, nil
}
