package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/codelyst/projmart/internal/credits"
	apierrors "github.com/codelyst/projmart/internal/errors"
	"github.com/codelyst/projmart/internal/middleware"
	"github.com/codelyst/projmart/internal/models"
	"github.com/codelyst/projmart/internal/monitoring"
	"github.com/codelyst/projmart/internal/quota"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// handleAdminGetCredits returns any user's credit account
func (s *APIServer) handleAdminGetCredits(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid user id"))
		return
	}

	acct, err := s.creditService.GetAccount(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, credits.ErrAccountNotFound) {
			respondError(c, apierrors.ErrUserNotFoundError)
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, acct)
}

// handleAdminGetHistory returns any user's ledger history
func (s *APIServer) handleAdminGetHistory(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid user id"))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	history, err := s.creditService.GetHistory(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, history)
}

// AdjustCreditsRequest is the body for an administrative balance change
type AdjustCreditsRequest struct {
	Action models.AdjustAction `json:"action" binding:"required"`
	Amount decimal.Decimal     `json:"amount" binding:"required"`
	Note   string              `json:"note"`
}

// handleAdminAdjustCredits applies an administrative balance adjustment
func (s *APIServer) handleAdminAdjustCredits(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid user id"))
		return
	}

	var req AdjustCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	acct, err := s.creditService.AdminAdjust(c.Request.Context(), userID, req.Action, req.Amount, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrInvalidAction):
			respondError(c, apierrors.NewValidationError("Action must be one of add, deduct, set"))
		case errors.Is(err, credits.ErrInvalidAmount):
			respondError(c, apierrors.ErrInvalidAmountError)
		case errors.Is(err, credits.ErrTransientFailure):
			monitoring.RecordTransientFailure()
			respondError(c, apierrors.ErrTransientFailureError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	monitoring.RecordAdminAdjustment(string(req.Action))
	c.JSON(http.StatusOK, acct)
}

// handleAdminTogglePremium flips a user's premium flag
func (s *APIServer) handleAdminTogglePremium(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid user id"))
		return
	}

	acct, err := s.creditService.TogglePremium(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, credits.ErrTransientFailure) {
			monitoring.RecordTransientFailure()
			respondError(c, apierrors.ErrTransientFailureError)
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, acct)
}

// handleAdminResetAll refills every non-premium account to its daily limit
func (s *APIServer) handleAdminResetAll(c *gin.Context) {
	count, err := s.creditService.ResetAll(c.Request.Context())
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	monitoring.RecordCreditReset("admin")
	c.JSON(http.StatusOK, gin.H{"accounts_reset": count})
}

// handleAdminGetPolicy returns the provisioning defaults for new accounts
func (s *APIServer) handleAdminGetPolicy(c *gin.Context) {
	policy, err := s.creditService.GetDefaultPolicy(c.Request.Context())
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, policy)
}

// UpdatePolicyRequest is the body for changing the account defaults
type UpdatePolicyRequest struct {
	DefaultCredits    int64 `json:"default_credits" binding:"min=0"`
	DefaultDailyLimit int64 `json:"default_daily_limit" binding:"min=0"`
}

// handleAdminUpdatePolicy changes the defaults for future accounts
func (s *APIServer) handleAdminUpdatePolicy(c *gin.Context) {
	var req UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	policy, err := s.creditService.UpdateDefaultPolicy(c.Request.Context(), req.DefaultCredits, req.DefaultDailyLimit)
	if err != nil {
		if errors.Is(err, credits.ErrInvalidAmount) {
			respondError(c, apierrors.ErrInvalidAmountError)
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, policy)
}

// handleAdminListPendingRequests returns open quota requests, oldest first
func (s *APIServer) handleAdminListPendingRequests(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	pending, err := s.quotaService.ListPending(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, pending)
}

// ResolveRequestBody is the body for approving or rejecting a quota request
type ResolveRequestBody struct {
	Note string `json:"note"`
}

// handleAdminApproveRequest grants a pending quota request
func (s *APIServer) handleAdminApproveRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid request id"))
		return
	}
	adminID := middleware.GetUserIDFromContext(c)

	var body ResolveRequestBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	result, err := s.quotaService.Approve(c.Request.Context(), requestID, adminID, body.Note)
	if err != nil {
		s.respondQuotaResolveError(c, err)
		return
	}

	monitoring.RecordQuotaRequestResolved("approved")
	c.JSON(http.StatusOK, result)
}

// handleAdminRejectRequest declines a pending quota request
func (s *APIServer) handleAdminRejectRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apierrors.NewInvalidRequestError("Invalid request id"))
		return
	}
	adminID := middleware.GetUserIDFromContext(c)

	var body ResolveRequestBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	result, err := s.quotaService.Reject(c.Request.Context(), requestID, adminID, body.Note)
	if err != nil {
		s.respondQuotaResolveError(c, err)
		return
	}

	monitoring.RecordQuotaRequestResolved("rejected")
	c.JSON(http.StatusOK, result)
}

func (s *APIServer) respondQuotaResolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quota.ErrReasonRequired):
		respondError(c, apierrors.ErrReasonRequiredError)
	case errors.Is(err, quota.ErrRequestNotFound):
		respondError(c, apierrors.ErrRequestNotFoundError)
	case errors.Is(err, quota.ErrRequestNotPending):
		respondError(c, apierrors.ErrRequestNotPendingError)
	case errors.Is(err, quota.ErrTransientFailure):
		monitoring.RecordTransientFailure()
		respondError(c, apierrors.ErrTransientFailureError)
	default:
		respondError(c, apierrors.ErrInternalServerError)
	}
}
