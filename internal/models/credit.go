package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerAction represents the kind of mutation recorded in the credit ledger
type LedgerAction string

const (
	LedgerActionUse         LedgerAction = "use"
	LedgerActionReset       LedgerAction = "reset"
	LedgerActionAdminAdd    LedgerAction = "admin_add"
	LedgerActionAdminDeduct LedgerAction = "admin_deduct"
	LedgerActionAdminSet    LedgerAction = "admin_set"
	LedgerActionPremiumOn   LedgerAction = "premium_on"
	LedgerActionPremiumOff  LedgerAction = "premium_off"
)

// AdjustAction is the closed set of admin balance adjustments
type AdjustAction string

const (
	AdjustActionAdd    AdjustAction = "add"
	AdjustActionDeduct AdjustAction = "deduct"
	AdjustActionSet    AdjustAction = "set"
)

// Valid reports whether the action is one of the known adjustment kinds
func (a AdjustAction) Valid() bool {
	switch a {
	case AdjustActionAdd, AdjustActionDeduct, AdjustActionSet:
		return true
	}
	return false
}

// LedgerAction returns the ledger action recorded for this adjustment
func (a AdjustAction) LedgerAction() LedgerAction {
	switch a {
	case AdjustActionAdd:
		return LedgerActionAdminAdd
	case AdjustActionDeduct:
		return LedgerActionAdminDeduct
	default:
		return LedgerActionAdminSet
	}
}

// CreditAccount represents a user's AI-chat credit balance
type CreditAccount struct {
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	Credits     decimal.Decimal `json:"credits" db:"credits"`
	DailyLimit  int64           `json:"daily_limit" db:"daily_limit"`
	IsPremium   bool            `json:"is_premium" db:"is_premium"`
	TotalUsed   decimal.Decimal `json:"total_used" db:"total_used"`
	LastResetAt time.Time       `json:"last_reset_at" db:"last_reset_at"`
	Version     int64           `json:"-" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is one immutable line of a credit account's history
type LedgerEntry struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	UserID           uuid.UUID       `json:"user_id" db:"user_id"`
	Action           LedgerAction    `json:"action" db:"action"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	ResultingBalance decimal.Decimal `json:"resulting_balance" db:"resulting_balance"`
	Message          string          `json:"message" db:"message"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// DefaultPolicy is the singleton record seeding newly created credit accounts
type DefaultPolicy struct {
	DefaultCredits    int64     `json:"default_credits" db:"default_credits"`
	DefaultDailyLimit int64     `json:"default_daily_limit" db:"default_daily_limit"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}
