package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"collectpay/internal/aml"
	"collectpay/internal/domain"
	"collectpay/internal/wallet"
	"collectpay/pkg/config"
	"collectpay/pkg/errors"
	"collectpay/pkg/logger"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockRepository) FindByReference(ctx context.Context, ref string) (*domain.Transaction, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockRepository) FindLivePending(ctx context.Context, fromUserID uuid.UUID, now time.Time) (*domain.Transaction, error) {
	args := m.Called(ctx, fromUserID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockRepository) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) TransitionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, reason string, processedBy *uuid.UUID, completedAt *time.Time) error {
	args := m.Called(ctx, id, status, reason, processedBy, completedAt)
	return args.Error(0)
}

func (m *MockRepository) ClearExpiry(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) ReleaseExpiredPending(ctx context.Context, fromUserID uuid.UUID, now time.Time) error {
	args := m.Called(ctx, fromUserID, now)
	return args.Error(0)
}

func (m *MockRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Transaction, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockWalletStore struct {
	mock.Mock
}

func (m *MockWalletStore) ApplyCompletedTransaction(ctx context.Context, userID, txID uuid.UUID, amount decimal.Decimal, role domain.Role) error {
	args := m.Called(ctx, userID, txID, amount, role)
	return args.Error(0)
}

func (m *MockWalletStore) CheckTransferLimits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*wallet.LimitCheck, error) {
	args := m.Called(ctx, userID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.LimitCheck), args.Error(1)
}

type MockLimitValidator struct {
	mock.Mock
}

func (m *MockLimitValidator) Validate(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*errors.UsageSnapshot, error) {
	args := m.Called(ctx, userID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*errors.UsageSnapshot), args.Error(1)
}

type MockAmlMonitor struct {
	mock.Mock
}

func (m *MockAmlMonitor) CheckTransaction(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) ([]aml.Alert, error) {
	args := m.Called(ctx, userID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]aml.Alert), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error {
	args := m.Called(ctx, userID, eventType, data)
	return args.Error(0)
}

type fixture struct {
	repo     *MockRepository
	userRepo *MockUserRepository
	wallets  *MockWalletStore
	limits   *MockLimitValidator
	monitor  *MockAmlMonitor
	notifier *MockNotifier
	service  *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:     new(MockRepository),
		userRepo: new(MockUserRepository),
		wallets:  new(MockWalletStore),
		limits:   new(MockLimitValidator),
		monitor:  new(MockAmlMonitor),
		notifier: new(MockNotifier),
	}
	f.service = NewService(f.repo, f.userRepo, f.wallets, f.limits, f.monitor, f.notifier, config.LimitsConfig{
		TransactionTTL: 120 * time.Second,
	}, logger.NewNop())
	return f
}

// --- Tests ---

func TestCreateRejectsSecondPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	senderID := uuid.New()

	f.repo.On("FindLivePending", ctx, senderID, mock.Anything).Return(&domain.Transaction{
		Reference: "TXN-20260828-0042",
		Status:    domain.TransactionStatusPending,
	}, nil)

	_, err := f.service.Create(ctx, &CreateRequest{
		FromUserID: senderID,
		Amount:     decimal.NewFromInt(100),
		Type:       domain.TransactionTypeCollection,
	})

	var dup *errors.DuplicatePendingError
	assert.ErrorAs(t, err, &dup)
	assert.Equal(t, "TXN-20260828-0042", dup.Reference)
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreatePendingCollection(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	senderID := uuid.New()

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return now }

	f.repo.On("FindLivePending", ctx, senderID, now).Return(nil, errors.ErrTransactionNotFound)
	f.repo.On("ReleaseExpiredPending", ctx, senderID, now).Return(nil)
	f.limits.On("Validate", ctx, senderID, mock.Anything).Return(&errors.UsageSnapshot{}, nil)
	f.wallets.On("CheckTransferLimits", ctx, senderID, mock.Anything).Return(&wallet.LimitCheck{Allowed: true}, nil)
	f.monitor.On("CheckTransaction", ctx, senderID, mock.Anything).Return([]aml.Alert{}, nil)
	f.repo.On("ReferenceExists", ctx, mock.Anything).Return(false, nil)
	f.repo.On("Create", ctx, mock.Anything).Return(nil)

	tx, err := f.service.Create(ctx, &CreateRequest{
		FromUserID: senderID,
		Amount:     decimal.NewFromFloat(183.97),
		Type:       domain.TransactionTypeCollection,
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, tx.Status)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(183)))
	assert.Equal(t, now.Add(120*time.Second), *tx.ExpiresAt)
	assert.Contains(t, tx.Reference, "TXN-20260828-")
	// Any expired row still occupying the sender's slot is released before
	// the insert rather than waiting for the sweep.
	f.repo.AssertCalled(t, "ReleaseExpiredPending", ctx, senderID, now)
}

func TestCreateTransferAutoCompletes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	senderID := uuid.New()

	f.repo.On("FindLivePending", ctx, senderID, mock.Anything).Return(nil, errors.ErrTransactionNotFound)
	f.repo.On("ReleaseExpiredPending", ctx, senderID, mock.Anything).Return(nil)
	f.limits.On("Validate", ctx, senderID, mock.Anything).Return(&errors.UsageSnapshot{}, nil)
	f.wallets.On("CheckTransferLimits", ctx, senderID, mock.Anything).Return(&wallet.LimitCheck{Allowed: true}, nil)
	f.monitor.On("CheckTransaction", ctx, senderID, mock.Anything).Return([]aml.Alert{}, nil)
	f.repo.On("ReferenceExists", ctx, mock.Anything).Return(false, nil)

	var createdID uuid.UUID
	f.repo.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		createdID = args.Get(1).(*domain.Transaction).ID
	}).Return(nil)
	f.repo.On("FindByID", ctx, mock.Anything).Return(&domain.Transaction{
		ID:         uuid.New(),
		FromUserID: senderID,
		Amount:     decimal.NewFromInt(500),
		Status:     domain.TransactionStatusPending,
	}, nil)
	f.repo.On("TransitionStatus", ctx, mock.Anything, domain.TransactionStatusCompleted, "", (*uuid.UUID)(nil), mock.Anything).Return(nil)
	f.userRepo.On("FindByID", ctx, senderID).Return(&domain.User{ID: senderID, Role: domain.RoleCashier}, nil)
	f.wallets.On("ApplyCompletedTransaction", ctx, senderID, mock.Anything, mock.Anything, domain.RoleCashier).Return(nil)

	tx, err := f.service.Create(ctx, &CreateRequest{
		FromUserID: senderID,
		Amount:     decimal.NewFromInt(500),
		Type:       domain.TransactionTypeTransfer,
	})

	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, createdID)
	assert.Equal(t, domain.TransactionStatusCompleted, tx.Status)
	f.wallets.AssertExpectations(t)
}

func TestCreateHeldByAmlAlert(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	senderID := uuid.New()

	f.repo.On("FindLivePending", ctx, senderID, mock.Anything).Return(nil, errors.ErrTransactionNotFound)
	f.repo.On("ReleaseExpiredPending", ctx, senderID, mock.Anything).Return(nil)
	f.limits.On("Validate", ctx, senderID, mock.Anything).Return(&errors.UsageSnapshot{}, nil)
	f.wallets.On("CheckTransferLimits", ctx, senderID, mock.Anything).Return(&wallet.LimitCheck{Allowed: true}, nil)
	f.monitor.On("CheckTransaction", ctx, senderID, mock.Anything).Return([]aml.Alert{
		{Rule: "large_amount", RiskScore: 75, Message: "amount 600000 meets the large-amount threshold of 500000"},
	}, nil)
	f.repo.On("ReferenceExists", ctx, mock.Anything).Return(false, nil)
	f.repo.On("Create", ctx, mock.Anything).Return(nil)
	f.notifier.On("Notify", ctx, senderID, "TRANSACTION_HELD", mock.Anything).Return(nil)

	tx, err := f.service.Create(ctx, &CreateRequest{
		FromUserID: senderID,
		Amount:     decimal.NewFromInt(600_000),
		Type:       domain.TransactionTypeTransfer,
	})

	var hold *errors.AmlHoldError
	assert.ErrorAs(t, err, &hold)
	assert.Equal(t, 75, hold.RiskScore)
	assert.NotNil(t, tx)
	assert.Equal(t, domain.TransactionStatusPending, tx.Status)
	// A held transaction awaits a reviewer; the expiry sweep must not touch it.
	assert.Nil(t, tx.ExpiresAt)
	// The held transfer never auto-completes.
	f.repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatusSingleLegWhenSenderIsReceiver(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	userID := uuid.New()
	txID := uuid.New()

	f.repo.On("FindByID", ctx, txID).Return(&domain.Transaction{
		ID:         txID,
		FromUserID: userID,
		ToUserID:   &userID,
		Amount:     decimal.NewFromInt(100),
		Status:     domain.TransactionStatusPending,
	}, nil)
	f.repo.On("TransitionStatus", ctx, txID, domain.TransactionStatusCompleted, "", (*uuid.UUID)(nil), mock.Anything).Return(nil)
	f.userRepo.On("FindByID", ctx, userID).Return(&domain.User{ID: userID, Role: domain.RoleCashier}, nil)
	f.wallets.On("ApplyCompletedTransaction", ctx, userID, txID, mock.Anything, domain.RoleCashier).Return(nil).Once()

	err := f.service.UpdateStatus(ctx, txID, domain.TransactionStatusCompleted, "", nil)

	assert.NoError(t, err)
	f.wallets.AssertNumberOfCalls(t, "ApplyCompletedTransaction", 1)
}

func TestUpdateStatusRejectsNonPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	txID := uuid.New()

	f.repo.On("FindByID", ctx, txID).Return(&domain.Transaction{
		ID:     txID,
		Status: domain.TransactionStatusCompleted,
	}, nil)

	err := f.service.UpdateStatus(ctx, txID, domain.TransactionStatusRejected, "stale", nil)

	var ve *errors.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestMarkExpiredParksDocumentBacked(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	plain := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusPending}
	documented := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusPending, DocumentCount: 2}

	f.repo.On("FindExpiredPending", ctx, mock.Anything, expiredPendingBatch).Return([]*domain.Transaction{plain, documented}, nil)
	f.repo.On("TransitionStatus", ctx, plain.ID, domain.TransactionStatusRejected, "timed out", (*uuid.UUID)(nil), (*time.Time)(nil)).Return(nil)
	f.repo.On("ClearExpiry", ctx, documented.ID).Return(nil)

	err := f.service.MarkExpired(ctx)

	assert.NoError(t, err)
	f.repo.AssertNumberOfCalls(t, "TransitionStatus", 1)
	// The documented row stays pending but gives up its expiry, and with it
	// the sender's single-flight slot.
	f.repo.AssertCalled(t, "ClearExpiry", ctx, documented.ID)
	f.repo.AssertNotCalled(t, "TransitionStatus", ctx, documented.ID, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
