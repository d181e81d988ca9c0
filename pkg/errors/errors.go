// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrWalletInactive       = errors.New("wallet is not active")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrQrCodeNotFound       = errors.New("qr code not found")
	ErrSettlementNotFound   = errors.New("settlement request not found")
	ErrDuplicateReference   = errors.New("transaction reference already exists")
	ErrUnauthorized         = errors.New("caller identity could not be asserted")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ValidationError reports a malformed or semantically invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DuplicatePendingError is returned when a sender already has a live pending
// transaction. At most one is allowed per sender at any instant.
type DuplicatePendingError struct {
	Reference string
}

func (e *DuplicatePendingError) Error() string {
	if e.Reference == "" {
		return "sender already has a pending transaction"
	}
	return fmt.Sprintf("sender already has a pending transaction (%s)", e.Reference)
}

// LimitScope identifies which ceiling a LimitExceededError refers to.
type LimitScope string

const (
	LimitScopeSingle     LimitScope = "single"
	LimitScopeDaily      LimitScope = "daily"
	LimitScopeMonthly    LimitScope = "monthly"
	LimitScopeCollection LimitScope = "collection"
	LimitScopeTransfer   LimitScope = "transfer"
)

// UsageSnapshot carries the usage-versus-limit breakdown so callers can
// explain a denial.
type UsageSnapshot struct {
	DailyUsed    decimal.Decimal `json:"daily_used"`
	DailyLimit   decimal.Decimal `json:"daily_limit"`
	MonthlyUsed  decimal.Decimal `json:"monthly_used"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
}

type LimitExceededError struct {
	Scope     LimitScope
	Message   string
	Remaining decimal.Decimal
	Snapshot  *UsageSnapshot
}

func (e *LimitExceededError) Error() string {
	return e.Message
}

// CapacityExceededError is returned when a settlement request exceeds the
// organization's remaining capacity for the day.
type CapacityExceededError struct {
	Capacity    decimal.Decimal
	Requested   decimal.Decimal
	Collections decimal.Decimal
	Usage       decimal.Decimal
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("settlement capacity exceeded: requested %s, available %s (collections %s, in-flight %s)",
		e.Requested.String(), e.Capacity.String(), e.Collections.String(), e.Usage.String())
}

// AmlHoldError indicates a transaction was forced to manual review by a
// high-risk AML alert. The transaction itself is persisted in pending state.
type AmlHoldError struct {
	RiskScore int
	Reasons   []string
}

func (e *AmlHoldError) Error() string {
	return fmt.Sprintf("transaction held for manual review (risk score %d)", e.RiskScore)
}

// ExpiredError reports how long ago a time-boxed artifact expired.
type ExpiredError struct {
	Seconds int64
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("expired %d seconds ago", e.Seconds)
}

// AlreadyUsedError is returned on a second verification attempt against a
// single-use record.
type AlreadyUsedError struct {
	Digest string
}

func (e *AlreadyUsedError) Error() string {
	return "qr code has already been used"
}

// NotFoundError carries entity context for lookups that miss.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
