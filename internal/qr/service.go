// Package qr issues and verifies one-shot payment confirmation codes.
//
// Two payload shapes are accepted by Verify: a self-describing payload that
// carries its own expiry and a random nonce, and a legacy payload that only
// carries the stored digest. Both are cross-checked against a still-pending
// transaction before the confirmation is honored.
package qr

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"collectpay/internal/domain"
	"collectpay/pkg/config"
	"collectpay/pkg/errors"
	"collectpay/pkg/logger"
)

// amountTolerance absorbs rounding drift between the encoded amount and the
// stored transaction amount.
var amountTolerance = decimal.NewFromFloat(0.01)

type Service struct {
	repo      Repository
	txRepo    TransactionRepository
	lifecycle TransactionLifecycle
	replay    ReplayGuard
	logger    logger.Logger
	ttl       time.Duration
	now       func() time.Time
}

func NewService(
	repo Repository,
	txRepo TransactionRepository,
	lifecycle TransactionLifecycle,
	replay ReplayGuard,
	cfg config.LimitsConfig,
	log logger.Logger,
) *Service {
	return &Service{
		repo:      repo,
		txRepo:    txRepo,
		lifecycle: lifecycle,
		replay:    replay,
		logger:    log,
		ttl:       cfg.QrCodeTTL,
		now:       time.Now,
	}
}

// Payload is the JSON document encoded into a QR code. Self-describing
// payloads carry Nonce and ExpiresAt; legacy payloads carry only Digest.
type Payload struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	IssuedAt  int64           `json:"issued_at"`
	ExpiresAt int64           `json:"expires_at,omitempty"`
	Nonce     string          `json:"nonce,omitempty"`
	Issuer    string          `json:"issuer"`
	Digest    string          `json:"digest,omitempty"`
}

// VerifyResult exposes only the fields a confirming device needs to display.
type VerifyResult struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
}

// Generate issues a code for a live pending transaction owned by the issuer.
// A transaction gets at most one live code; a repeat call before expiry
// returns the existing one.
func (s *Service) Generate(ctx context.Context, issuerID uuid.UUID, transactionRef string) (*domain.QrCode, error) {
	now := s.now()

	tx, err := s.txRepo.FindByReference(ctx, transactionRef)
	if err != nil {
		return nil, err
	}
	if tx.FromUserID != issuerID {
		return nil, errors.ErrUnauthorized
	}
	if tx.Status != domain.TransactionStatusPending {
		return nil, &errors.ValidationError{Field: "reference", Message: "transaction is no longer pending"}
	}
	if tx.ExpiresAt != nil && !tx.ExpiresAt.After(now) {
		return nil, &errors.ExpiredError{Seconds: int64(now.Sub(*tx.ExpiresAt).Seconds())}
	}

	if existing, err := s.repo.FindLiveByTransactionRef(ctx, transactionRef, now); err == nil {
		return existing, nil
	} else if err != errors.ErrQrCodeNotFound {
		return nil, err
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	expiresAt := now.Add(s.ttl)
	payload := Payload{
		Reference: tx.Reference,
		Amount:    domain.Truncate(tx.Amount),
		Type:      string(tx.Type),
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
		Nonce:     nonce,
		Issuer:    issuerID.String(),
	}
	digest := payloadDigest(&payload)

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode payload")
	}

	code := &domain.QrCode{
		ID:             uuid.New(),
		TransactionRef: tx.Reference,
		Digest:         digest,
		Payload:        string(encoded),
		IssuedBy:       issuerID,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
	}
	if err := s.repo.Create(ctx, code); err != nil {
		return nil, err
	}

	s.logger.Info("QR code issued", map[string]interface{}{
		"transaction_ref": tx.Reference,
		"expires_at":      expiresAt,
	})
	return code, nil
}

// Verify confirms a scanned payload and completes the underlying
// transaction. Self-describing payloads are validated in place with a redis
// nonce guard against replay; legacy payloads are consumed through the
// stored row's atomic single-use update.
func (s *Service) Verify(ctx context.Context, raw string) (*VerifyResult, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, &errors.ValidationError{Field: "payload", Message: "malformed QR payload"}
	}

	if p.Nonce != "" && p.ExpiresAt > 0 {
		return s.verifySelfDescribing(ctx, &p)
	}
	return s.verifyLegacy(ctx, &p)
}

func (s *Service) verifySelfDescribing(ctx context.Context, p *Payload) (*VerifyResult, error) {
	if p.Reference == "" {
		return nil, &errors.ValidationError{Field: "reference", Message: "reference is required"}
	}
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, &errors.ValidationError{Field: "amount", Message: "amount must be greater than zero"}
	}
	if _, err := uuid.Parse(p.Issuer); err != nil {
		return nil, &errors.ValidationError{Field: "issuer", Message: "issuer must be a valid id"}
	}

	now := s.now()
	if expiry := time.UnixMilli(p.ExpiresAt); !expiry.After(now) {
		return nil, &errors.ExpiredError{Seconds: int64(now.Sub(expiry).Seconds())}
	}

	tx, err := s.txRepo.FindByReference(ctx, p.Reference)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusPending {
		return nil, &errors.ValidationError{Field: "reference", Message: "transaction is no longer pending"}
	}
	if tx.Amount.Sub(p.Amount).Abs().GreaterThan(amountTolerance) {
		return nil, &errors.ValidationError{Field: "amount", Message: "amount does not match the transaction"}
	}

	digest := payloadDigest(p)
	nonceKey := "qr:nonce:" + p.Nonce
	fresh, err := s.replay.MarkOnce(ctx, nonceKey, s.ttl)
	if err != nil {
		return nil, errors.Wrap(err, "replay guard unavailable")
	}
	if !fresh {
		return nil, &errors.AlreadyUsedError{Digest: digest}
	}

	result, err := s.confirm(ctx, tx)
	if err != nil {
		// The payment did not complete; release the nonce so a rescan works.
		if unmarkErr := s.replay.Unmark(ctx, nonceKey); unmarkErr != nil {
			s.logger.Warn("Failed to release nonce after failed confirmation", map[string]interface{}{
				"reference": p.Reference,
				"error":     unmarkErr.Error(),
			})
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) verifyLegacy(ctx context.Context, p *Payload) (*VerifyResult, error) {
	if p.Digest == "" {
		return nil, &errors.ValidationError{Field: "digest", Message: "digest is required"}
	}

	code, err := s.repo.ConsumeByDigest(ctx, p.Digest, s.now())
	if err != nil {
		return nil, err
	}

	tx, err := s.txRepo.FindByReference(ctx, code.TransactionRef)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TransactionStatusPending {
		return nil, &errors.ValidationError{Field: "reference", Message: "transaction is no longer pending"}
	}

	return s.confirm(ctx, tx)
}

func (s *Service) confirm(ctx context.Context, tx *domain.Transaction) (*VerifyResult, error) {
	if err := s.lifecycle.UpdateStatus(ctx, tx.ID, domain.TransactionStatusCompleted, "", nil); err != nil {
		return nil, err
	}

	s.logger.Info("QR confirmation completed transaction", map[string]interface{}{
		"reference": tx.Reference,
		"amount":    tx.Amount.String(),
	})
	return &VerifyResult{
		Reference: tx.Reference,
		Amount:    tx.Amount,
		Type:      string(tx.Type),
		Status:    string(domain.TransactionStatusCompleted),
	}, nil
}

// Expunge removes expired and consumed codes.
func (s *Service) Expunge(ctx context.Context) error {
	removed, err := s.repo.DeleteExpiredOrUsed(ctx, s.now())
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info("Expunged QR codes", map[string]interface{}{"count": removed})
	}
	return nil
}

func payloadDigest(p *Payload) string {
	canonical := fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		p.Reference, p.Amount.String(), p.Type, p.IssuedAt, p.Nonce, p.Issuer)
	sum := sha3.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Repository interfaces
type Repository interface {
	Create(ctx context.Context, code *domain.QrCode) error
	FindLiveByTransactionRef(ctx context.Context, ref string, now time.Time) (*domain.QrCode, error)
	ConsumeByDigest(ctx context.Context, digest string, now time.Time) (*domain.QrCode, error)
	DeleteExpiredOrUsed(ctx context.Context, now time.Time) (int64, error)
}

type TransactionRepository interface {
	FindByReference(ctx context.Context, ref string) (*domain.Transaction, error)
}

type TransactionLifecycle interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, reason string, processedBy *uuid.UUID) error
}

type ReplayGuard interface {
	MarkOnce(ctx context.Context, key string, expiration time.Duration) (bool, error)
	Unmark(ctx context.Context, key string) error
}
