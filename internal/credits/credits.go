package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codelyst/projmart/internal/cache"
	"github.com/codelyst/projmart/internal/config"
	"github.com/codelyst/projmart/internal/models"
	"github.com/codelyst/projmart/internal/monitoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Service errors
var (
	ErrInsufficientCredits = errors.New("insufficient credits for this request")
	ErrInvalidAmount       = errors.New("adjustment amount must be non-negative")
	ErrInvalidAction       = errors.New("unknown adjustment action")
	ErrInvalidCost         = errors.New("consume cost must be positive")
	ErrAccountNotFound     = errors.New("credit account not found")
	ErrTransientFailure    = errors.New("temporary storage conflict")
)

const balanceCacheTTL = time.Hour

// Service handles all credit ledger operations. Every mutation runs inside
// a transaction that locks the owning account row, so read-modify-write
// sequences are serialized per user without a global lock.
type Service struct {
	db    *pgxpool.Pool
	cache *cache.Redis
	cfg   *config.CreditsConfig
}

// NewService creates a new credit ledger service. The cache may be nil; it
// only accelerates balance reads.
func NewService(db *pgxpool.Pool, rdb *cache.Redis, cfg *config.CreditsConfig) *Service {
	return &Service{
		db:    db,
		cache: rdb,
		cfg:   cfg,
	}
}

// ConsumeResult reports the outcome of a successful consume
type ConsumeResult struct {
	Credits   decimal.Decimal `json:"credits"`
	TotalUsed decimal.Decimal `json:"total_used"`
	Unlimited bool            `json:"unlimited"`
	DidReset  bool            `json:"did_reset"`
}

// Consume authorizes and debits usage for one AI-chat request. The account
// is created lazily from the default policy. Premium accounts bypass the
// balance check entirely but still accrue TotalUsed and a ledger entry.
// The daily reset is applied lazily, before the balance is evaluated.
func (s *Service) Consume(ctx context.Context, userID uuid.UUID, cost decimal.Decimal, note string) (*ConsumeResult, error) {
	if !cost.IsPositive() {
		return nil, ErrInvalidCost
	}

	var res *ConsumeResult
	err := s.withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		acct, err := s.lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		didReset := false
		if !acct.IsPremium && needsReset(acct.LastResetAt, now) {
			delta := decimal.NewFromInt(acct.DailyLimit).Sub(acct.Credits)
			acct.Credits = decimal.NewFromInt(acct.DailyLimit)
			acct.LastResetAt = now
			didReset = true
			if err := appendEntry(ctx, tx, userID, models.LedgerActionReset, delta, acct.Credits, "daily credit reset"); err != nil {
				return err
			}
		}

		if acct.IsPremium {
			acct.TotalUsed = acct.TotalUsed.Add(cost)
			if err := appendEntry(ctx, tx, userID, models.LedgerActionUse, decimal.Zero, acct.Credits, note); err != nil {
				return err
			}
			if err := saveAccount(ctx, tx, acct); err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("failed to commit transaction: %w", err)
			}
			res = &ConsumeResult{Credits: acct.Credits, TotalUsed: acct.TotalUsed, Unlimited: true, DidReset: didReset}
			return nil
		}

		if acct.Credits.LessThan(cost) {
			// The reset still takes effect even when the request is refused;
			// the refused consume itself leaves no trace.
			if didReset {
				if err := saveAccount(ctx, tx, acct); err != nil {
					return err
				}
				if err := tx.Commit(ctx); err != nil {
					return fmt.Errorf("failed to commit transaction: %w", err)
				}
			}
			return ErrInsufficientCredits
		}

		acct.Credits = acct.Credits.Sub(cost)
		acct.TotalUsed = acct.TotalUsed.Add(cost)
		if err := appendEntry(ctx, tx, userID, models.LedgerActionUse, cost.Neg(), acct.Credits, note); err != nil {
			return err
		}
		if err := saveAccount(ctx, tx, acct); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		res = &ConsumeResult{Credits: acct.Credits, TotalUsed: acct.TotalUsed, DidReset: didReset}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.DidReset {
		monitoring.RecordCreditReset("daily")
	}
	if s.cache != nil {
		s.cache.SetBalance(ctx, userID, res.Credits, balanceCacheTTL)
	}
	return res, nil
}

// GetAccount retrieves a credit account without locking it
func (s *Service) GetAccount(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error) {
	acct, err := scanAccount(s.db.QueryRow(ctx, `
		SELECT user_id, credits, daily_limit, is_premium, total_used, last_reset_at, version, created_at, updated_at
		FROM credit_accounts WHERE user_id = $1
	`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get credit account: %w", err)
	}
	return acct, nil
}

// GetBalance returns the spendable balance for a user, preferring the cache
// and warming it from Postgres on a miss
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if s.cache != nil {
		balance, err := s.cache.GetBalance(ctx, userID)
		if err == nil {
			monitoring.RecordCacheHit("balance")
			return balance, nil
		}
		monitoring.RecordCacheMiss("balance")
	}

	acct, err := s.GetAccount(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	if s.cache != nil {
		s.cache.SetBalance(ctx, userID, acct.Credits, balanceCacheTTL)
	}
	return acct.Credits, nil
}

// HistoryResponse represents a page of ledger history
type HistoryResponse struct {
	Entries    []models.LedgerEntry `json:"entries"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalPages int                  `json:"total_pages"`
}

// GetHistory returns the ledger history for a user in stored order
// (oldest first). Read-only, no side effects.
func (s *Service) GetHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) (*HistoryResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	var total int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM credit_ledger WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, action, amount, resulting_balance, message, created_at
		FROM credit_ledger
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, userID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Amount, &e.ResultingBalance, &e.Message, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return &HistoryResponse{
		Entries:    entries,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// lockAccount loads the account row under FOR UPDATE, creating it from the
// default policy when it does not exist yet
func (s *Service) lockAccount(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.CreditAccount, error) {
	acct, err := scanAccount(tx.QueryRow(ctx, `
		SELECT user_id, credits, daily_limit, is_premium, total_used, last_reset_at, version, created_at, updated_at
		FROM credit_accounts WHERE user_id = $1 FOR UPDATE
	`, userID))
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to lock credit account: %w", err)
	}

	policy, err := s.getPolicy(ctx, tx)
	if err != nil {
		return nil, err
	}

	// ON CONFLICT keeps concurrent first-touch creations from colliding;
	// the re-select below locks whichever row won.
	_, err = tx.Exec(ctx, `
		INSERT INTO credit_accounts (user_id, credits, daily_limit)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, policy.DefaultCredits, policy.DefaultDailyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create credit account: %w", err)
	}

	acct, err = scanAccount(tx.QueryRow(ctx, `
		SELECT user_id, credits, daily_limit, is_premium, total_used, last_reset_at, version, created_at, updated_at
		FROM credit_accounts WHERE user_id = $1 FOR UPDATE
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock created credit account: %w", err)
	}
	return acct, nil
}

func (s *Service) getPolicy(ctx context.Context, tx pgx.Tx) (*models.DefaultPolicy, error) {
	var policy models.DefaultPolicy
	err := tx.QueryRow(ctx, `
		SELECT default_credits, default_daily_limit, updated_at FROM default_policy WHERE singleton
	`).Scan(&policy.DefaultCredits, &policy.DefaultDailyLimit, &policy.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Policy row missing (fresh database); fall back to configuration.
			return &models.DefaultPolicy{
				DefaultCredits:    s.cfg.DefaultCredits,
				DefaultDailyLimit: s.cfg.DefaultDailyLimit,
			}, nil
		}
		return nil, fmt.Errorf("failed to read default policy: %w", err)
	}
	return &policy, nil
}

func scanAccount(row pgx.Row) (*models.CreditAccount, error) {
	var acct models.CreditAccount
	err := row.Scan(
		&acct.UserID, &acct.Credits, &acct.DailyLimit, &acct.IsPremium,
		&acct.TotalUsed, &acct.LastResetAt, &acct.Version,
		&acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func saveAccount(ctx context.Context, tx pgx.Tx, acct *models.CreditAccount) error {
	_, err := tx.Exec(ctx, `
		UPDATE credit_accounts
		SET credits = $1, daily_limit = $2, is_premium = $3, total_used = $4,
		    last_reset_at = $5, version = version + 1, updated_at = NOW()
		WHERE user_id = $6
	`, acct.Credits, acct.DailyLimit, acct.IsPremium, acct.TotalUsed, acct.LastResetAt, acct.UserID)
	if err != nil {
		return fmt.Errorf("failed to save credit account: %w", err)
	}
	return nil
}

func appendEntry(ctx context.Context, tx pgx.Tx, userID uuid.UUID, action models.LedgerAction, amount, balance decimal.Decimal, message string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO credit_ledger (id, user_id, action, amount, resulting_balance, message)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), userID, action, amount, balance, message)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}
