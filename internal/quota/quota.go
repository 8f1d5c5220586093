package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codelyst/projmart/internal/config"
	"github.com/codelyst/projmart/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Service errors
var (
	ErrQuotaExceeded     = errors.New("project quota exhausted")
	ErrQuotaNotExhausted = errors.New("quota increase requires an exhausted quota")
	ErrDuplicatePending  = errors.New("a quota request is already pending")
	ErrReasonRequired    = errors.New("a reason is required for quota requests")
	ErrRequestNotFound   = errors.New("quota request not found")
	ErrRequestNotPending = errors.New("quota request has already been resolved")
	ErrTransientFailure  = errors.New("temporary storage conflict")
)

// defaultApprovalNote is recorded when the reviewing admin leaves no note
const defaultApprovalNote = "Your quota increase request has been approved."

// Service manages per-user project slot quotas and the request/review
// workflow that grows them. Slot counts live in project_quotas; every
// increase beyond the default passes through an admin-reviewed
// quota_requests row.
type Service struct {
	db  *pgxpool.Pool
	cfg *config.CreditsConfig
}

// NewService creates a new quota service
func NewService(db *pgxpool.Pool, cfg *config.CreditsConfig) *Service {
	return &Service{db: db, cfg: cfg}
}

// Remaining reports how many project slots the user can still claim. Users
// without a quota row get the implicit default of one free slot.
func (s *Service) Remaining(ctx context.Context, userID uuid.UUID) (int, error) {
	q, err := s.getQuota(ctx, userID)
	if err != nil {
		return 0, err
	}
	return q.Remaining(), nil
}

// GetQuota returns the user's slot quota, materializing the default row if
// none exists yet
func (s *Service) GetQuota(ctx context.Context, userID uuid.UUID) (*models.ProjectQuota, error) {
	return s.getQuota(ctx, userID)
}

// ConsumeSlot claims one project slot for the user, typically when a
// project is created. Fails with ErrQuotaExceeded when no slot remains.
func (s *Service) ConsumeSlot(ctx context.Context, userID uuid.UUID) (*models.ProjectQuota, error) {
	var result *models.ProjectQuota
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		q, err := s.lockQuota(ctx, tx, userID)
		if err != nil {
			return err
		}
		if q.Used >= q.Allowed {
			return ErrQuotaExceeded
		}

		q.Used++
		if err := saveQuota(ctx, tx, q); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		result = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseSlot returns one claimed slot, e.g. when a project is deleted.
// Releasing with nothing claimed is a no-op.
func (s *Service) ReleaseSlot(ctx context.Context, userID uuid.UUID) (*models.ProjectQuota, error) {
	var result *models.ProjectQuota
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		q, err := s.lockQuota(ctx, tx, userID)
		if err != nil {
			return err
		}
		if q.Used > 0 {
			q.Used--
			if err := saveQuota(ctx, tx, q); err != nil {
				return err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		result = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequestIncrease files a quota increase request. The quota must be fully
// used, the reason must be non-blank, and at most one request per user may
// be pending at a time.
func (s *Service) RequestIncrease(ctx context.Context, userID uuid.UUID, reason string, paymentAmount decimal.Decimal) (*models.QuotaRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if paymentAmount.IsNegative() {
		paymentAmount = decimal.Zero
	}

	var result *models.QuotaRequest
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		q, err := s.lockQuota(ctx, tx, userID)
		if err != nil {
			return err
		}
		if q.Used < q.Allowed {
			return ErrQuotaNotExhausted
		}

		req := &models.QuotaRequest{
			ID:            uuid.New(),
			UserID:        userID,
			Reason:        reason,
			PaymentAmount: paymentAmount,
			Status:        models.QuotaRequestPending,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO quota_requests (id, user_id, reason, payment_amount)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, req.ID, req.UserID, req.Reason, req.PaymentAmount).Scan(&req.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicatePending
			}
			return fmt.Errorf("failed to create quota request: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "quota").
		Str("user_id", userID.String()).
		Str("request_id", result.ID.String()).
		Msg("Quota increase requested")
	return result, nil
}

// Approve grants a pending request: the request flips to approved and the
// requester's allowance grows by one, in the same transaction. An empty
// note is replaced with a standard approval message.
func (s *Service) Approve(ctx context.Context, requestID, adminID uuid.UUID, note string) (*models.QuotaRequest, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		note = defaultApprovalNote
	}

	var result *models.QuotaRequest
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		req, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.QuotaRequestPending {
			return ErrRequestNotPending
		}

		q, err := s.lockQuota(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		q.Allowed++
		if err := saveQuota(ctx, tx, q); err != nil {
			return err
		}

		now := time.Now().UTC()
		req.Status = models.QuotaRequestApproved
		req.AdminNote = &note
		req.ResolvedBy = &adminID
		req.ResolvedAt = &now
		if err := saveRequest(ctx, tx, req); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "quota").
		Str("request_id", requestID.String()).
		Str("admin_id", adminID.String()).
		Str("decision", "approved").
		Msg("Quota request resolved")
	return result, nil
}

// Reject declines a pending request. A note explaining the decision is
// mandatory. The quota is untouched and the user may file a new request
// afterwards.
func (s *Service) Reject(ctx context.Context, requestID, adminID uuid.UUID, note string) (*models.QuotaRequest, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, ErrReasonRequired
	}

	var result *models.QuotaRequest
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		req, err := lockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.QuotaRequestPending {
			return ErrRequestNotPending
		}

		now := time.Now().UTC()
		req.Status = models.QuotaRequestRejected
		req.AdminNote = &note
		req.ResolvedBy = &adminID
		req.ResolvedAt = &now
		if err := saveRequest(ctx, tx, req); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "quota").
		Str("request_id", requestID.String()).
		Str("admin_id", adminID.String()).
		Str("decision", "rejected").
		Msg("Quota request resolved")
	return result, nil
}

// ListRequests returns the user's own requests, newest first
func (s *Service) ListRequests(ctx context.Context, userID uuid.UUID) ([]models.QuotaRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, reason, payment_amount, status, admin_note, resolved_by, resolved_at, created_at
		FROM quota_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query quota requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// PendingPage is one page of the admin review queue
type PendingPage struct {
	Requests   []models.QuotaRequest `json:"requests"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// ListPending returns open requests across users, oldest first so admins
// review in arrival order
func (s *Service) ListPending(ctx context.Context, page, pageSize int) (*PendingPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	var total int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM quota_requests WHERE status = 'pending'`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending quota requests: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, reason, payment_amount, status, admin_note, resolved_by, resolved_at, created_at
		FROM quota_requests
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending quota requests: %w", err)
	}
	defer rows.Close()

	requests, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	return &PendingPage{
		Requests:   requests,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// lockQuota loads the quota row under FOR UPDATE, creating the default
// single-slot row when the user has none yet
func (s *Service) lockQuota(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.ProjectQuota, error) {
	q, err := scanQuota(tx.QueryRow(ctx, `
		SELECT user_id, allowed, used, version, created_at, updated_at
		FROM project_quotas WHERE user_id = $1 FOR UPDATE
	`, userID))
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to lock project quota: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO project_quotas (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create project quota: %w", err)
	}

	q, err = scanQuota(tx.QueryRow(ctx, `
		SELECT user_id, allowed, used, version, created_at, updated_at
		FROM project_quotas WHERE user_id = $1 FOR UPDATE
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock created project quota: %w", err)
	}
	return q, nil
}

func (s *Service) getQuota(ctx context.Context, userID uuid.UUID) (*models.ProjectQuota, error) {
	q, err := scanQuota(s.db.QueryRow(ctx, `
		SELECT user_id, allowed, used, version, created_at, updated_at
		FROM project_quotas WHERE user_id = $1
	`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Implicit default until the row is materialized.
			now := time.Now().UTC()
			return &models.ProjectQuota{UserID: userID, Allowed: 1, Used: 0, Version: 1, CreatedAt: now, UpdatedAt: now}, nil
		}
		return nil, fmt.Errorf("failed to get project quota: %w", err)
	}
	return q, nil
}

func saveQuota(ctx context.Context, tx pgx.Tx, q *models.ProjectQuota) error {
	_, err := tx.Exec(ctx, `
		UPDATE project_quotas
		SET allowed = $1, used = $2, version = version + 1, updated_at = NOW()
		WHERE user_id = $3
	`, q.Allowed, q.Used, q.UserID)
	if err != nil {
		return fmt.Errorf("failed to save project quota: %w", err)
	}
	return nil
}

func lockRequest(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (*models.QuotaRequest, error) {
	var req models.QuotaRequest
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, reason, payment_amount, status, admin_note, resolved_by, resolved_at, created_at
		FROM quota_requests WHERE id = $1 FOR UPDATE
	`, requestID).Scan(
		&req.ID, &req.UserID, &req.Reason, &req.PaymentAmount, &req.Status,
		&req.AdminNote, &req.ResolvedBy, &req.ResolvedAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to lock quota request: %w", err)
	}
	return &req, nil
}

func saveRequest(ctx context.Context, tx pgx.Tx, req *models.QuotaRequest) error {
	_, err := tx.Exec(ctx, `
		UPDATE quota_requests
		SET status = $1, admin_note = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $5
	`, req.Status, req.AdminNote, req.ResolvedBy, req.ResolvedAt, req.ID)
	if err != nil {
		return fmt.Errorf("failed to save quota request: %w", err)
	}
	return nil
}

func scanQuota(row pgx.Row) (*models.ProjectQuota, error) {
	var q models.ProjectQuota
	err := row.Scan(&q.UserID, &q.Allowed, &q.Used, &q.Version, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func scanRequests(rows pgx.Rows) ([]models.QuotaRequest, error) {
	requests := make([]models.QuotaRequest, 0)
	for rows.Next() {
		var req models.QuotaRequest
		err := rows.Scan(
			&req.ID, &req.UserID, &req.Reason, &req.PaymentAmount, &req.Status,
			&req.AdminNote, &req.ResolvedBy, &req.ResolvedAt, &req.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quota request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quota requests: %w", err)
	}
	return requests, nil
}

// withRetry retries op on serialization and deadlock failures, surfacing
// ErrTransientFailure when retries are exhausted
func (s *Service) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := s.cfg.MaxTxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = op(ctx)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		log.Warn().
			Str("component", "quota").
			Int("attempt", i+1).
			Int("max_attempts", attempts).
			Err(err).
			Msg("Retrying quota transaction after conflict")
	}
	return errors.Join(ErrTransientFailure, err)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
