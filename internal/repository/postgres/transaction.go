package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"collectpay/internal/domain"
	"collectpay/pkg/errors"
)

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, reference, from_user_id, to_user_id, amount, type, status,
			description, expires_at, rejection_reason, priority, processed_by,
			document_count, completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.Reference, tx.FromUserID, tx.ToUserID, tx.Amount, tx.Type, tx.Status,
		tx.Description, tx.ExpiresAt, tx.RejectionReason, tx.Priority, tx.ProcessedBy,
		tx.DocumentCount, tx.CompletedAt, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			if strings.Contains(pqErr.Constraint, "one_pending_per_sender") {
				dup := &errors.DuplicatePendingError{}
				// Best effort: name the row that won the race.
				_ = r.db.GetContext(ctx, &dup.Reference, `
					SELECT reference FROM transactions
					WHERE from_user_id = $1 AND status = 'pending' AND expires_at IS NOT NULL
					LIMIT 1
				`, tx.FromUserID)
				return dup
			}
			if strings.Contains(pqErr.Constraint, "reference") {
				return errors.ErrDuplicateReference
			}
		}
		return errors.Wrap(err, "failed to create transaction")
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	query := `SELECT * FROM transactions WHERE id = $1`
	err := r.db.GetContext(ctx, tx, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, errors.Wrap(err, "failed to find transaction by id")
	}
	return tx, nil
}

func (r *TransactionRepository) FindByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	query := `SELECT * FROM transactions WHERE reference = $1`
	err := r.db.GetContext(ctx, tx, query, ref)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, errors.Wrap(err, "failed to find transaction by reference")
	}
	return tx, nil
}

// FindLivePending returns the sender's pending, unexpired transaction if one
// exists. Pending rows with a NULL expiry are parked for manual review and
// are not live. The partial unique index transactions_one_pending_per_sender
// closes the check-then-insert window this query leaves open.
func (r *TransactionRepository) FindLivePending(ctx context.Context, fromUserID uuid.UUID, now time.Time) (*domain.Transaction, error) {
	tx := &domain.Transaction{}
	query := `
		SELECT * FROM transactions
		WHERE from_user_id = $1 AND status = 'pending' AND expires_at IS NOT NULL AND expires_at > $2
		LIMIT 1
	`
	err := r.db.GetContext(ctx, tx, query, fromUserID, now)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, errors.Wrap(err, "failed to find live pending transaction")
	}
	return tx, nil
}

func (r *TransactionRepository) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM transactions WHERE reference = $1`, ref)
	return count > 0, errors.Wrap(err, "failed to check reference")
}

// TransitionStatus moves a pending transaction to a terminal status. The
// status guard in the WHERE clause makes the transition exactly-once: a
// second caller sees zero rows and gets ErrTransactionNotFound.
func (r *TransactionRepository) TransitionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, reason string, processedBy *uuid.UUID, completedAt *time.Time) error {
	query := `
		UPDATE transactions SET
			status = $1, rejection_reason = $2, processed_by = $3,
			completed_at = $4, updated_at = NOW()
		WHERE id = $5 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, status, reason, processedBy, completedAt, id)
	if err != nil {
		return errors.Wrap(err, "failed to transition transaction status")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrTransactionNotFound
	}
	return nil
}

// ClearExpiry parks a pending transaction for manual review by dropping its
// expiry. The row stays pending but no longer occupies the sender's
// single-flight slot or shows up in the expiry sweep.
func (r *TransactionRepository) ClearExpiry(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE transactions SET expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND expires_at IS NOT NULL
	`
	_, err := r.db.ExecContext(ctx, query, id)
	return errors.Wrap(err, "failed to clear transaction expiry")
}

// ReleaseExpiredPending clears the sender's single-flight slot of any row
// already past its window: document-backed rows are parked for review,
// everything else is rejected as timed out. Run before an insert so a stale
// row the sweep has not reached yet cannot block a new transaction.
func (r *TransactionRepository) ReleaseExpiredPending(ctx context.Context, fromUserID uuid.UUID, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to begin slot release")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions SET expires_at = NULL, updated_at = NOW()
		WHERE from_user_id = $1 AND status = 'pending'
		  AND expires_at IS NOT NULL AND expires_at <= $2
		  AND document_count > 0
	`, fromUserID, now)
	if err != nil {
		return errors.Wrap(err, "failed to park document-backed transaction")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions SET
			status = 'rejected', rejection_reason = 'timed out', updated_at = NOW()
		WHERE from_user_id = $1 AND status = 'pending'
		  AND expires_at IS NOT NULL AND expires_at <= $2
	`, fromUserID, now)
	if err != nil {
		return errors.Wrap(err, "failed to reject stale transaction")
	}

	return errors.Wrap(tx.Commit(), "failed to commit slot release")
}

// FindExpiredPending returns pending rows past their expiry. Document-backed
// rows are included; the sweep decides whether to park or reject them.
func (r *TransactionRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	query := `
		SELECT * FROM transactions
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`
	err := r.db.SelectContext(ctx, &txs, query, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find expired pending transactions")
	}
	return txs, nil
}

// SumOrgVolume sums non-rejected transaction volume for an organization's
// users in [since, now).
func (r *TransactionRepository) SumOrgVolume(ctx context.Context, orgID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := `
		SELECT COALESCE(SUM(t.amount), 0)
		FROM transactions t
		JOIN users u ON u.id = t.from_user_id
		WHERE u.organization_id = $1 AND t.status != 'rejected' AND t.created_at >= $2
	`
	err := r.db.GetContext(ctx, &total, query, orgID, since)
	return total, errors.Wrap(err, "failed to sum organization volume")
}

// CountRecentByUser counts the user's transactions created in [since, now).
func (r *TransactionRepository) CountRecentByUser(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM transactions WHERE from_user_id = $1 AND created_at >= $2`
	err := r.db.GetContext(ctx, &count, query, userID, since)
	return count, errors.Wrap(err, "failed to count recent transactions")
}
