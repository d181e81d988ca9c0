package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"collectpay/internal/domain"
	"collectpay/pkg/config"
	"collectpay/pkg/errors"
	"collectpay/pkg/logger"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, wallet *domain.Wallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockRepository) ResetDailyCounters(ctx context.Context, walletID uuid.UUID, role domain.Role, resetDate time.Time) error {
	args := m.Called(ctx, walletID, role, resetDate)
	return args.Error(0)
}

func (m *MockRepository) FindStale(ctx context.Context, date time.Time) ([]*domain.Wallet, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Wallet), args.Error(1)
}

func (m *MockRepository) PostCollection(ctx context.Context, merchantWalletID, financeWalletID uuid.UUID, amount decimal.Decimal) error {
	args := m.Called(ctx, merchantWalletID, financeWalletID, amount)
	return args.Error(0)
}

func (m *MockRepository) PostTransfer(ctx context.Context, cashierWalletID uuid.UUID, amount decimal.Decimal) error {
	args := m.Called(ctx, cashierWalletID, amount)
	return args.Error(0)
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

func (m *MockUserRepository) FindByOrganizationAndRole(ctx context.Context, orgID uuid.UUID, role domain.Role) (*domain.User, error) {
	args := m.Called(ctx, orgID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MerchantDailyCollection: 1_000_000,
		CashierDailyTransfer:    1_000_000,
		TransactionTTL:          120 * time.Second,
		QrCodeTTL:               120 * time.Second,
	}
}

// --- Tests ---

func TestResetOnCalendarDateChange(t *testing.T) {
	mockRepo := new(MockRepository)
	mockUserRepo := new(MockUserRepository)
	service := NewService(mockRepo, mockUserRepo, testLimits(), logger.NewNop())
	ctx := context.Background()

	userID := uuid.New()
	w := &domain.Wallet{
		ID:             uuid.New(),
		UserID:         userID,
		Balance:        decimal.NewFromInt(750),
		DailyCollected: decimal.NewFromInt(750),
		LastResetDate:  time.Date(2026, 8, 27, 23, 59, 0, 0, time.UTC),
		IsActive:       true,
	}

	// Two minutes later, but a new calendar date.
	service.now = func() time.Time { return time.Date(2026, 8, 28, 0, 1, 0, 0, time.UTC) }

	mockUserRepo.On("FindByID", ctx, userID).Return(&domain.User{ID: userID, Role: domain.RoleMerchant}, nil)
	mockRepo.On("ResetDailyCounters", ctx, w.ID, domain.RoleMerchant, mock.Anything).Return(nil)

	err := service.CheckAndResetDailySpending(ctx, w)

	assert.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
	assert.True(t, w.DailyCollected.IsZero())
	mockRepo.AssertExpectations(t)
}

func TestNoResetWithinSameDate(t *testing.T) {
	mockRepo := new(MockRepository)
	mockUserRepo := new(MockUserRepository)
	service := NewService(mockRepo, mockUserRepo, testLimits(), logger.NewNop())

	w := &domain.Wallet{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Balance:       decimal.NewFromInt(500),
		LastResetDate: time.Date(2026, 8, 28, 0, 30, 0, 0, time.UTC),
	}

	// Twenty-three hours elapsed, still the 28th.
	service.now = func() time.Time { return time.Date(2026, 8, 28, 23, 30, 0, 0, time.UTC) }

	err := service.CheckAndResetDailySpending(context.Background(), w)

	assert.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(500)))
	mockRepo.AssertNotCalled(t, "ResetDailyCounters", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCashierResetKeepsBalance(t *testing.T) {
	mockRepo := new(MockRepository)
	mockUserRepo := new(MockUserRepository)
	service := NewService(mockRepo, mockUserRepo, testLimits(), logger.NewNop())
	ctx := context.Background()

	userID := uuid.New()
	w := &domain.Wallet{
		ID:               uuid.New(),
		UserID:           userID,
		Balance:          decimal.NewFromInt(900),
		DailyTransferred: decimal.NewFromInt(400),
		LastResetDate:    time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC),
	}

	service.now = func() time.Time { return time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC) }

	mockUserRepo.On("FindByID", ctx, userID).Return(&domain.User{ID: userID, Role: domain.RoleCashier}, nil)
	mockRepo.On("ResetDailyCounters", ctx, w.ID, domain.RoleCashier, mock.Anything).Return(nil)

	err := service.CheckAndResetDailySpending(ctx, w)

	assert.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(900)))
	assert.True(t, w.DailyTransferred.IsZero())
}

func TestMerchantDailyCollectionLimit(t *testing.T) {
	mockRepo := new(MockRepository)
	mockUserRepo := new(MockUserRepository)
	service := NewService(mockRepo, mockUserRepo, testLimits(), logger.NewNop())
	ctx := context.Background()

	userID := uuid.New()
	mockUserRepo.On("FindByID", ctx, userID).Return(&domain.User{ID: userID, Role: domain.RoleMerchant}, nil)
	mockRepo.On("FindByUserID", ctx, userID).Return(&domain.Wallet{
		ID:             uuid.New(),
		UserID:         userID,
		DailyCollected: decimal.NewFromInt(500_000),
		LastResetDate:  time.Now(),
		IsActive:       true,
	}, nil)

	check, err := service.CheckTransferLimits(ctx, userID, decimal.NewFromInt(600_000))

	assert.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.True(t, check.Remaining.Equal(decimal.NewFromInt(500_000)))
	assert.Contains(t, check.Message, "500000 remaining today")
}

func TestCashierInsufficientBalance(t *testing.T) {
	mockRepo := new(MockRepository)
	mockUserRepo := new(MockUserRepository)
	service := NewService(mockRepo, mockUserRepo, testLimits(), logger.NewNop())
	ctx := context.Background()

	userID := uuid.New()
	mockUserRepo.On("FindByID", ctx, userID).Return(&domain.User{ID: userID, Role: domain.RoleCashier}, nil)
	mockRepo.On("FindByUserID", ctx, userID).Return(&domain.Wallet{
		ID:            uuid.New(),
		UserID:        userID,
		Balance:       decimal.NewFromInt(100),
		LastResetDate: time.Now(),
		IsActive:      true,
	}, nil)

	check, err := service.CheckTransferLimits(ctx, userID, decimal.NewFromInt(500))

	assert.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Contains(t, check.Message, "insufficient balance")
}

func TestMerchantCollectionPostsBothLegs(t *testing.T) {
	mockRepo := new(MockRepository)
	mockUserRepo := new(MockUserRepository)
	service := NewService(mockRepo, mockUserRepo, testLimits(), logger.NewNop())
	ctx := context.Background()

	orgID := uuid.New()
	merchantID := uuid.New()
	financeID := uuid.New()
	merchantWallet := &domain.Wallet{ID: uuid.New(), UserID: merchantID, LastResetDate: time.Now(), IsActive: true}
	financeWallet := &domain.Wallet{ID: uuid.New(), UserID: financeID, LastResetDate: time.Now(), IsActive: true}

	mockRepo.On("FindByUserID", ctx, merchantID).Return(merchantWallet, nil)
	mockRepo.On("FindByUserID", ctx, financeID).Return(financeWallet, nil)
	mockUserRepo.On("FindByID", ctx, merchantID).Return(&domain.User{
		ID: merchantID, Role: domain.RoleMerchant, OrganizationID: &orgID,
	}, nil)
	mockUserRepo.On("FindByOrganizationAndRole", ctx, orgID, domain.RoleFinance).Return(&domain.User{
		ID: financeID, Role: domain.RoleFinance, OrganizationID: &orgID,
	}, nil)

	amount := decimal.NewFromInt(250)
	mockRepo.On("PostCollection", ctx, merchantWallet.ID, financeWallet.ID, amount).Return(nil)

	err := service.ApplyCompletedTransaction(ctx, merchantID, uuid.New(), amount, domain.RoleMerchant)

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestApplyOnInactiveWallet(t *testing.T) {
	mockRepo := new(MockRepository)
	mockUserRepo := new(MockUserRepository)
	service := NewService(mockRepo, mockUserRepo, testLimits(), logger.NewNop())
	ctx := context.Background()

	userID := uuid.New()
	mockRepo.On("FindByUserID", ctx, userID).Return(&domain.Wallet{
		ID: uuid.New(), UserID: userID, LastResetDate: time.Now(), IsActive: false,
	}, nil)

	err := service.ApplyCompletedTransaction(ctx, userID, uuid.New(), decimal.NewFromInt(10), domain.RoleCashier)

	assert.ErrorIs(t, err, errors.ErrWalletInactive)
	mockRepo.AssertNotCalled(t, "PostTransfer", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinanceResetClearsCollectedKeepsBalance(t *testing.T) {
	mockRepo := new(MockRepository)
	mockUserRepo := new(MockUserRepository)
	service := NewService(mockRepo, mockUserRepo, testLimits(), logger.NewNop())
	ctx := context.Background()

	userID := uuid.New()
	w := &domain.Wallet{
		ID:             uuid.New(),
		UserID:         userID,
		Balance:        decimal.NewFromInt(200_000),
		DailyCollected: decimal.NewFromInt(200_000),
		LastResetDate:  time.Date(2026, 8, 27, 18, 0, 0, 0, time.UTC),
		IsActive:       true,
	}

	service.now = func() time.Time { return time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC) }

	mockUserRepo.On("FindByID", ctx, userID).Return(&domain.User{ID: userID, Role: domain.RoleFinance}, nil)
	mockRepo.On("ResetDailyCounters", ctx, w.ID, domain.RoleFinance, mock.Anything).Return(nil)

	err := service.CheckAndResetDailySpending(ctx, w)

	// Yesterday's fan-in must not count toward today's settlement capacity,
	// while the unsettled balance carries over.
	assert.NoError(t, err)
	assert.True(t, w.DailyCollected.IsZero())
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(200_000)))
	mockRepo.AssertExpectations(t)
}
