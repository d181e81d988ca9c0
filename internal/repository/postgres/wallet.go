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

type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	query := `
		INSERT INTO wallets (
			id, user_id, balance, daily_collected, daily_transferred, last_reset_date, is_active, created_at, updated_at
		) VALUES (
			:id, :user_id, :balance, :daily_collected, :daily_transferred, :last_reset_date, :is_active, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, wallet)
	return errors.Wrap(err, "failed to create wallet")
}

func (r *WalletRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet := &domain.Wallet{}
	query := `SELECT * FROM wallets WHERE user_id = $1`
	err := r.db.GetContext(ctx, wallet, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrWalletNotFound
		}
		return nil, errors.Wrap(err, "failed to find wallet by user id")
	}
	return wallet, nil
}

// ResetDailyCounters zeroes the role-specific counters and stamps the reset
// date. The date guard makes concurrent lazy resets and the sweep idempotent:
// whichever runs first wins, the rest see zero rows.
func (r *WalletRepository) ResetDailyCounters(ctx context.Context, walletID uuid.UUID, role domain.Role, resetDate time.Time) error {
	var query string
	switch role {
	case domain.RoleMerchant:
		query = `
			UPDATE wallets SET
				balance = 0,
				daily_collected = 0,
				last_reset_date = $1,
				updated_at = NOW()
			WHERE id = $2 AND last_reset_date::date < $1::date
		`
	case domain.RoleCashier:
		query = `
			UPDATE wallets SET
				daily_transferred = 0,
				last_reset_date = $1,
				updated_at = NOW()
			WHERE id = $2 AND last_reset_date::date < $1::date
		`
	case domain.RoleFinance:
		// The fan-in counter feeds settlement capacity as "today's
		// collections"; it must start every day at zero. The balance
		// carries over until settled.
		query = `
			UPDATE wallets SET
				daily_collected = 0,
				last_reset_date = $1,
				updated_at = NOW()
			WHERE id = $2 AND last_reset_date::date < $1::date
		`
	default:
		query = `
			UPDATE wallets SET
				last_reset_date = $1,
				updated_at = NOW()
			WHERE id = $2 AND last_reset_date::date < $1::date
		`
	}
	_, err := r.db.ExecContext(ctx, query, resetDate, walletID)
	return errors.Wrap(err, "failed to reset daily counters")
}

// FindStale returns active wallets whose last reset is before the given
// calendar date. Used by the dormant-wallet sweep.
func (r *WalletRepository) FindStale(ctx context.Context, date time.Time) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	query := `SELECT * FROM wallets WHERE is_active = true AND last_reset_date::date < $1::date`
	err := r.db.SelectContext(ctx, &wallets, query, date)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find stale wallets")
	}
	return wallets, nil
}

// PostCollection credits a completed collection: the merchant leg and the
// organization's finance-role leg as one logical unit of work.
func (r *WalletRepository) PostCollection(ctx context.Context, merchantWalletID, financeWalletID uuid.UUID, amount decimal.Decimal) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to begin collection posting")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance = balance + $1,
			daily_collected = daily_collected + $1,
			updated_at = NOW()
		WHERE id = $2
	`, amount, merchantWalletID)
	if err != nil {
		return errors.Wrap(err, "failed to credit merchant wallet")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance = balance + $1,
			daily_collected = daily_collected + $1,
			updated_at = NOW()
		WHERE id = $2
	`, amount, financeWalletID)
	if err != nil {
		return errors.Wrap(err, "failed to credit organization wallet")
	}

	return errors.Wrap(tx.Commit(), "failed to commit collection posting")
}

// PostTransfer debits a cashier wallet for a completed transfer. The balance
// guard in SQL keeps the counter non-negative under concurrency.
func (r *WalletRepository) PostTransfer(ctx context.Context, cashierWalletID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE wallets SET
			balance = balance - $1,
			daily_transferred = daily_transferred + $1,
			updated_at = NOW()
		WHERE id = $2 AND balance >= $1
	`
	result, err := r.db.ExecContext(ctx, query, amount, cashierWalletID)
	if err != nil {
		return errors.Wrap(err, "failed to post transfer")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrInsufficientBalance
	}
	return nil
}
