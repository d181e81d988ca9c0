package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"collectpay/internal/domain"
	"collectpay/pkg/errors"
)

type QrCodeRepository struct {
	db *sqlx.DB
}

func NewQrCodeRepository(db *sqlx.DB) *QrCodeRepository {
	return &QrCodeRepository{db: db}
}

func (r *QrCodeRepository) Create(ctx context.Context, code *domain.QrCode) error {
	query := `
		INSERT INTO qr_codes (
			id, transaction_ref, digest, payload, issued_by, expires_at, is_used, used_at, created_at
		) VALUES (
			:id, :transaction_ref, :digest, :payload, :issued_by, :expires_at, :is_used, :used_at, :created_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, code)
	return errors.Wrap(err, "failed to create qr code")
}

// FindLiveByTransactionRef returns an unused, unexpired code for the
// transaction if one exists. At most one may be live at a time.
func (r *QrCodeRepository) FindLiveByTransactionRef(ctx context.Context, ref string, now time.Time) (*domain.QrCode, error) {
	code := &domain.QrCode{}
	query := `
		SELECT * FROM qr_codes
		WHERE transaction_ref = $1 AND is_used = false AND expires_at > $2
		LIMIT 1
	`
	err := r.db.GetContext(ctx, code, query, ref, now)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrQrCodeNotFound
		}
		return nil, errors.Wrap(err, "failed to find live qr code")
	}
	return code, nil
}

// ConsumeByDigest atomically flips an unused, unexpired record to used and
// returns it. A second attempt against the same record reports
// AlreadyUsedError; an expired record reports how long ago it expired.
func (r *QrCodeRepository) ConsumeByDigest(ctx context.Context, digest string, now time.Time) (*domain.QrCode, error) {
	code := &domain.QrCode{}
	query := `
		UPDATE qr_codes SET
			is_used = true, used_at = $2
		WHERE digest = $1 AND is_used = false AND expires_at > $2
		RETURNING *
	`
	err := r.db.GetContext(ctx, code, query, digest, now)
	if err == nil {
		return code, nil
	}
	if err != sql.ErrNoRows {
		return nil, errors.Wrap(err, "failed to consume qr code")
	}

	// No live row; distinguish used vs expired vs unknown.
	existing := &domain.QrCode{}
	err = r.db.GetContext(ctx, existing, `SELECT * FROM qr_codes WHERE digest = $1`, digest)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrQrCodeNotFound
		}
		return nil, errors.Wrap(err, "failed to inspect qr code")
	}
	if existing.IsUsed {
		return nil, &errors.AlreadyUsedError{Digest: digest}
	}
	return nil, &errors.ExpiredError{Seconds: int64(now.Sub(existing.ExpiresAt).Seconds())}
}

// DeleteExpiredOrUsed removes rows that are used or past expiry.
func (r *QrCodeRepository) DeleteExpiredOrUsed(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM qr_codes WHERE is_used = true OR expires_at <= $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to expunge qr codes")
	}
	rows, err := result.RowsAffected()
	return rows, errors.Wrap(err, "failed to get rows affected")
}
