package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuotaRequestStatus represents the lifecycle state of a quota request
type QuotaRequestStatus string

const (
	QuotaRequestPending  QuotaRequestStatus = "pending"
	QuotaRequestApproved QuotaRequestStatus = "approved"
	QuotaRequestRejected QuotaRequestStatus = "rejected"
)

// Terminal reports whether the status can no longer change
func (s QuotaRequestStatus) Terminal() bool {
	return s == QuotaRequestApproved || s == QuotaRequestRejected
}

// ProjectQuota tracks how many custom projects a user may create
type ProjectQuota struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Allowed   int       `json:"allowed" db:"allowed"`
	Used      int       `json:"used" db:"used"`
	Version   int64     `json:"-" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Remaining returns the unconsumed project slots, never negative
func (q *ProjectQuota) Remaining() int {
	remaining := q.Allowed - q.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// QuotaRequest is a user's ask for one additional custom-project slot,
// adjudicated by an admin
type QuotaRequest struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	UserID        uuid.UUID          `json:"user_id" db:"user_id"`
	Reason        string             `json:"reason" db:"reason"`
	PaymentAmount decimal.Decimal    `json:"payment_amount" db:"payment_amount"`
	Status        QuotaRequestStatus `json:"status" db:"status"`
	AdminNote     *string            `json:"admin_note,omitempty" db:"admin_note"`
	ResolvedBy    *uuid.UUID         `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt    *time.Time         `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
}
