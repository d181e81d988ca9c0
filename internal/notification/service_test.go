package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collectpay/internal/domain"
	"collectpay/pkg/logger"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Notification), args.Error(1)
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

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(to, subject, body string) error {
	args := m.Called(to, subject, body)
	return args.Error(0)
}

// --- Tests ---

func TestNotifyPersistsAndEmails(t *testing.T) {
	repo := new(MockRepository)
	userRepo := new(MockUserRepository)
	mailer := new(MockMailer)
	service := NewService(repo, userRepo, mailer, logger.NewNop())
	ctx := context.Background()

	userID := uuid.New()
	var saved *domain.Notification
	repo.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*domain.Notification)
	}).Return(nil)
	userRepo.On("FindByID", ctx, userID).Return(&domain.User{ID: userID, Email: "finance@example.com"}, nil)
	mailer.On("Send", "finance@example.com", "Settlement approved", mock.Anything).Return(nil)

	err := service.Notify(ctx, userID, "SETTLEMENT_APPROVED", map[string]interface{}{
		"amount": "150000",
	})

	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "SETTLEMENT_APPROVED", saved.EventType)
	assert.Contains(t, saved.Body, "150000")
	mailer.AssertExpectations(t)
}

func TestNotifySurvivesMailerFailure(t *testing.T) {
	repo := new(MockRepository)
	userRepo := new(MockUserRepository)
	mailer := new(MockMailer)
	service := NewService(repo, userRepo, mailer, logger.NewNop())
	ctx := context.Background()

	userID := uuid.New()
	repo.On("Create", ctx, mock.Anything).Return(nil)
	userRepo.On("FindByID", ctx, userID).Return(&domain.User{ID: userID, Email: "m@example.com"}, nil)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	err := service.Notify(ctx, userID, "SETTLEMENT_REJECTED", map[string]interface{}{
		"amount": "5000",
		"reason": "invalid_account",
	})

	assert.NoError(t, err)
}

func TestHoldTemplateIncludesReference(t *testing.T) {
	subject, body := renderTemplate("TRANSACTION_HELD", map[string]interface{}{
		"reference": "TXN-20260828-0042",
		"reason":    "transaction flagged for manual review",
	})

	assert.Equal(t, "Transaction under review", subject)
	assert.Contains(t, body, "TXN-20260828-0042")
	assert.Contains(t, body, "manual review")
}
