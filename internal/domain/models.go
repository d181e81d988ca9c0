// Package domain defines the core entities of the organization cash ledger.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role identifies what a user may do with organization funds.
type Role string

const (
	RoleMerchant Role = "merchant"
	RoleCashier  Role = "cashier"
	RoleFinance  Role = "finance"
	RoleAdmin    Role = "admin"
)

// User is an already-authenticated platform user. Credential verification
// happens outside this module.
type User struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	FirstName      string     `json:"first_name" db:"first_name"`
	LastName       string     `json:"last_name" db:"last_name"`
	Role           Role       `json:"role" db:"role"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty" db:"organization_id"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

type OrganizationStatus string

const (
	OrganizationStatusPending   OrganizationStatus = "pending"
	OrganizationStatusApproved  OrganizationStatus = "approved"
	OrganizationStatusSuspended OrganizationStatus = "suspended"
)

type RiskRating string

const (
	RiskRatingLow    RiskRating = "low"
	RiskRatingMedium RiskRating = "medium"
	RiskRatingHigh   RiskRating = "high"
)

type Organization struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	Name          string             `json:"name" db:"name"`
	Status        OrganizationStatus `json:"status" db:"status"`
	KYCVerified   bool               `json:"kyc_verified" db:"kyc_verified"`
	RiskRating    RiskRating         `json:"risk_rating" db:"risk_rating"`
	SingleTxLimit decimal.Decimal    `json:"single_tx_limit" db:"single_tx_limit"`
	DailyLimit    decimal.Decimal    `json:"daily_limit" db:"daily_limit"`
	MonthlyLimit  decimal.Decimal    `json:"monthly_limit" db:"monthly_limit"`
	IsActive      bool               `json:"is_active" db:"is_active"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// Wallet holds a user's balance and rolling daily counters. It is owned
// exclusively by its user and mutated only through the wallet store.
type Wallet struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	UserID           uuid.UUID       `json:"user_id" db:"user_id"`
	Balance          decimal.Decimal `json:"balance" db:"balance"`
	DailyCollected   decimal.Decimal `json:"daily_collected" db:"daily_collected"`
	DailyTransferred decimal.Decimal `json:"daily_transferred" db:"daily_transferred"`
	LastResetDate    time.Time       `json:"last_reset_date" db:"last_reset_date"`
	IsActive         bool            `json:"is_active" db:"is_active"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRejected  TransactionStatus = "rejected"
)

type TransactionType string

const (
	TransactionTypeCollection TransactionType = "collection"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeSettlement TransactionType = "settlement"
)

// Priority is display-only and never affects processing order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Transaction struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	Reference       string            `json:"reference" db:"reference"`
	FromUserID      uuid.UUID         `json:"from_user_id" db:"from_user_id"`
	ToUserID        *uuid.UUID        `json:"to_user_id,omitempty" db:"to_user_id"`
	Amount          decimal.Decimal   `json:"amount" db:"amount"`
	Type            TransactionType   `json:"type" db:"type"`
	Status          TransactionStatus `json:"status" db:"status"`
	Description     string            `json:"description" db:"description"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
	RejectionReason string            `json:"rejection_reason,omitempty" db:"rejection_reason"`
	Priority        Priority          `json:"priority" db:"priority"`
	ProcessedBy     *uuid.UUID        `json:"processed_by,omitempty" db:"processed_by"`
	DocumentCount   int               `json:"document_count" db:"document_count"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
}

// QrCode is a single-use, time-boxed payment confirmation bound to one
// transaction. It holds a weak reference: deleting the code never affects
// the transaction.
type QrCode struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TransactionRef string     `json:"transaction_ref" db:"transaction_ref"`
	Digest         string     `json:"digest" db:"digest"`
	Payload        string     `json:"payload" db:"payload"`
	IssuedBy       uuid.UUID  `json:"issued_by" db:"issued_by"`
	ExpiresAt      time.Time  `json:"expires_at" db:"expires_at"`
	IsUsed         bool       `json:"is_used" db:"is_used"`
	UsedAt         *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "pending"
	SettlementStatusApproved  SettlementStatus = "approved"
	SettlementStatusHold      SettlementStatus = "hold"
	SettlementStatusRejected  SettlementStatus = "rejected"
	SettlementStatusCompleted SettlementStatus = "completed"
)

// SettlementReason is the closed set of hold/reject reason codes.
type SettlementReason string

const (
	ReasonDocumentsRequired  SettlementReason = "documents_required"
	ReasonLimitExceeded      SettlementReason = "limit_exceeded"
	ReasonSuspiciousActivity SettlementReason = "suspicious_activity"
	ReasonInvalidAccount     SettlementReason = "invalid_account"
	ReasonOther              SettlementReason = "other"
)

// ValidSettlementReason reports whether r is one of the closed reason codes.
func ValidSettlementReason(r SettlementReason) bool {
	switch r {
	case ReasonDocumentsRequired, ReasonLimitExceeded, ReasonSuspiciousActivity, ReasonInvalidAccount, ReasonOther:
		return true
	}
	return false
}

type SettlementRequest struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	OrganizationID uuid.UUID        `json:"organization_id" db:"organization_id"`
	RequestedBy    uuid.UUID        `json:"requested_by" db:"requested_by"`
	Amount         decimal.Decimal  `json:"amount" db:"amount"`
	BankName       string           `json:"bank_name" db:"bank_name"`
	AccountNumber  string           `json:"account_number" db:"account_number"`
	Status         SettlementStatus `json:"status" db:"status"`
	Reason         SettlementReason `json:"reason,omitempty" db:"reason"`
	Comment        string           `json:"comment,omitempty" db:"comment"`
	ReviewedBy     *uuid.UUID       `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt     *time.Time       `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

type Notification struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	EventType string    `json:"event_type" db:"event_type"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
