package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/codelyst/projmart/internal/chat"
	"github.com/codelyst/projmart/internal/credits"
	apierrors "github.com/codelyst/projmart/internal/errors"
	"github.com/codelyst/projmart/internal/middleware"
	"github.com/codelyst/projmart/internal/monitoring"
	"github.com/codelyst/projmart/internal/quota"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SendMessageRequest is the body for a chat message
type SendMessageRequest struct {
	Prompt  string `json:"prompt" binding:"required"`
	Context string `json:"context"`
}

// handleSendMessage charges one credit and forwards the message to the
// model upstream
func (s *APIServer) handleSendMessage(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return
	}

	if !s.limiter.Allow(c.Request.Context(), userID) {
		monitoring.RecordRateLimitHit()
		respondError(c, apierrors.ErrRateLimitedError)
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	result, err := s.chatService.Send(c.Request.Context(), userID, &chat.CompletionRequest{
		Prompt:  req.Prompt,
		Context: req.Context,
	})
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrInsufficientCredits):
			monitoring.RecordCreditDenial()
			respondError(c, apierrors.ErrInsufficientCreditsError)
		case errors.Is(err, credits.ErrTransientFailure):
			monitoring.RecordTransientFailure()
			respondError(c, apierrors.ErrTransientFailureError)
		case errors.Is(err, chat.ErrCircuitOpen), errors.Is(err, chat.ErrUpstreamError), errors.Is(err, chat.ErrUpstreamTimeout):
			respondError(c, &apierrors.APIError{
				Code:       apierrors.ErrInternalServer,
				Message:    "The assistant is temporarily unavailable",
				HTTPStatus: http.StatusBadGateway,
			})
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	monitoring.RecordCreditsConsumed(1)
	c.JSON(http.StatusOK, result)
}

// handleGetMyCredits returns the caller's credit account
func (s *APIServer) handleGetMyCredits(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return
	}

	acct, err := s.creditService.GetAccount(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, credits.ErrAccountNotFound) {
			// No account until first use; report the provisioning defaults.
			policy, perr := s.creditService.GetDefaultPolicy(c.Request.Context())
			if perr != nil {
				respondError(c, apierrors.ErrInternalServerError)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"user_id":     userID,
				"credits":     decimal.NewFromInt(policy.DefaultCredits),
				"daily_limit": policy.DefaultDailyLimit,
				"is_premium":  false,
				"total_used":  decimal.Zero,
			})
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, acct)
}

// handleGetMyBalance returns only the spendable balance, served from the
// cache when warm. Intended for the frequently polled UI badge.
func (s *APIServer) handleGetMyBalance(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return
	}

	balance, err := s.creditService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, credits.ErrAccountNotFound) {
			policy, perr := s.creditService.GetDefaultPolicy(c.Request.Context())
			if perr != nil {
				respondError(c, apierrors.ErrInternalServerError)
				return
			}
			c.JSON(http.StatusOK, gin.H{"credits": decimal.NewFromInt(policy.DefaultCredits)})
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"credits": balance})
}

// handleGetMyHistory returns the caller's ledger history
func (s *APIServer) handleGetMyHistory(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
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

// handleGetMyQuota returns the caller's project slot quota
func (s *APIServer) handleGetMyQuota(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return
	}

	q, err := s.quotaService.GetQuota(c.Request.Context(), userID)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":   q.UserID,
		"allowed":   q.Allowed,
		"used":      q.Used,
		"remaining": q.Remaining(),
	})
}

// handleConsumeSlot claims one project slot, typically when the caller
// creates a custom project
func (s *APIServer) handleConsumeSlot(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return
	}

	q, err := s.quotaService.ConsumeSlot(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrQuotaExceeded):
			respondError(c, apierrors.ErrQuotaExceededError)
		case errors.Is(err, quota.ErrTransientFailure):
			monitoring.RecordTransientFailure()
			respondError(c, apierrors.ErrTransientFailureError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	monitoring.RecordSlotConsumed()
	c.JSON(http.StatusOK, gin.H{
		"user_id":   q.UserID,
		"allowed":   q.Allowed,
		"used":      q.Used,
		"remaining": q.Remaining(),
	})
}

// handleReleaseSlot returns a claimed project slot
func (s *APIServer) handleReleaseSlot(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return
	}

	q, err := s.quotaService.ReleaseSlot(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, quota.ErrTransientFailure) {
			monitoring.RecordTransientFailure()
			respondError(c, apierrors.ErrTransientFailureError)
			return
		}
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":   q.UserID,
		"allowed":   q.Allowed,
		"used":      q.Used,
		"remaining": q.Remaining(),
	})
}

// QuotaIncreaseRequest is the body for filing a quota increase request
type QuotaIncreaseRequest struct {
	Reason        string          `json:"reason" binding:"required"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
}

// handleRequestQuotaIncrease files a quota increase request for review
func (s *APIServer) handleRequestQuotaIncrease(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return
	}

	var req QuotaIncreaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	result, err := s.quotaService.RequestIncrease(c.Request.Context(), userID, req.Reason, req.PaymentAmount)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrReasonRequired):
			respondError(c, apierrors.ErrReasonRequiredError)
		case errors.Is(err, quota.ErrQuotaNotExhausted):
			respondError(c, apierrors.ErrQuotaNotExhaustedError)
		case errors.Is(err, quota.ErrDuplicatePending):
			respondError(c, apierrors.ErrDuplicatePendingError)
		case errors.Is(err, quota.ErrTransientFailure):
			monitoring.RecordTransientFailure()
			respondError(c, apierrors.ErrTransientFailureError)
		default:
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	monitoring.RecordQuotaRequestFiled()
	c.JSON(http.StatusCreated, result)
}

// handleListMyQuotaRequests returns the caller's quota requests
func (s *APIServer) handleListMyQuotaRequests(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == uuid.Nil {
		respondError(c, apierrors.ErrInvalidCredentialsError)
		return
	}

	requests, err := s.quotaService.ListRequests(c.Request.Context(), userID)
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
