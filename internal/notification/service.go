// Package notification persists user-facing event notifications and sends
// the email copy. Delivery failures are logged and never fail the caller.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"collectpay/internal/domain"
	"collectpay/pkg/logger"
)

type Service struct {
	repo     Repository
	userRepo UserRepository
	mailer   Mailer
	logger   logger.Logger
	now      func() time.Time
}

func NewService(repo Repository, userRepo UserRepository, mailer Mailer, log logger.Logger) *Service {
	return &Service{
		repo:     repo,
		userRepo: userRepo,
		mailer:   mailer,
		logger:   log,
		now:      time.Now,
	}
}

// Notify records an event for the user and emails them a rendered copy.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error {
	subject, body := renderTemplate(eventType, data)

	n := &domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		EventType: eventType,
		Subject:   subject,
		Body:      body,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	if s.mailer != nil {
		user, err := s.userRepo.FindByID(ctx, userID)
		if err != nil {
			s.logger.Error("Notification email skipped, user lookup failed", map[string]interface{}{
				"user_id": userID,
				"error":   err.Error(),
			})
			return nil
		}
		if err := s.mailer.Send(user.Email, subject, body); err != nil {
			s.logger.Error("Failed to send notification email", map[string]interface{}{
				"user_id": userID,
				"event":   eventType,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.FindByUserID(ctx, userID, limit, offset)
}

func renderTemplate(eventType string, data map[string]interface{}) (subject, body string) {
	amount, _ := data["amount"].(string)
	reason, _ := data["reason"].(string)
	comment, _ := data["comment"].(string)

	switch eventType {
	case "SETTLEMENT_REQUESTED":
		return "Settlement request received",
			fmt.Sprintf("Your settlement request for %s has been submitted and is awaiting review.", amount)
	case "SETTLEMENT_APPROVED":
		return "Settlement approved",
			fmt.Sprintf("Your settlement request for %s has been approved.", amount)
	case "SETTLEMENT_ON_HOLD":
		body := fmt.Sprintf("Your settlement request for %s has been placed on hold. Reason: %s.", amount, reason)
		if comment != "" {
			body += " Comment: " + comment
		}
		return "Settlement on hold", body
	case "SETTLEMENT_REJECTED":
		body := fmt.Sprintf("Your settlement request for %s has been rejected. Reason: %s.", amount, reason)
		if comment != "" {
			body += " Comment: " + comment
		}
		return "Settlement rejected", body
	case "SETTLEMENT_COMPLETED":
		return "Settlement completed",
			fmt.Sprintf("Your settlement for %s has been paid out.", amount)
	case "TRANSACTION_HELD":
		ref, _ := data["reference"].(string)
		msg, _ := data["reason"].(string)
		return "Transaction under review",
			fmt.Sprintf("Transaction %s is being held for review: %s.", ref, msg)
	}
	return eventType, fmt.Sprintf("Event %s recorded.", eventType)
}

// Repository interfaces
type Repository interface {
	Create(ctx context.Context, n *domain.Notification) error
	FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type Mailer interface {
	Send(to, subject, body string) error
}
