package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codelyst/projmart/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// AdminAdjust applies an administrative balance change. Deductions clamp at
// zero and the ledger records the delta actually applied, not the amount
// requested. Adjustments never touch the reset clock or the daily limit.
func (s *Service) AdminAdjust(ctx context.Context, userID uuid.UUID, action models.AdjustAction, amount decimal.Decimal, note string) (*models.CreditAccount, error) {
	if !action.Valid() {
		return nil, ErrInvalidAction
	}
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	var result *models.CreditAccount
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

		var delta decimal.Decimal
		switch action {
		case models.AdjustActionAdd:
			delta = amount
			acct.Credits = acct.Credits.Add(amount)
		case models.AdjustActionDeduct:
			applied := decimal.Min(amount, acct.Credits)
			delta = applied.Neg()
			acct.Credits = acct.Credits.Sub(applied)
		case models.AdjustActionSet:
			delta = amount.Sub(acct.Credits)
			acct.Credits = amount
		}

		if err := appendEntry(ctx, tx, userID, action.LedgerAction(), delta, acct.Credits, note); err != nil {
			return err
		}
		if err := saveAccount(ctx, tx, acct); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		result = acct
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetBalance(ctx, userID, result.Credits, balanceCacheTTL)
	}
	log.Info().
		Str("component", "credits").
		Str("user_id", userID.String()).
		Str("action", string(action)).
		Str("amount", amount.String()).
		Str("balance", result.Credits.String()).
		Msg("Admin balance adjustment applied")
	return result, nil
}

// TogglePremium flips the premium flag and records the transition in the
// ledger. The stored balance is untouched; it simply resumes meaning once
// premium is turned off again.
func (s *Service) TogglePremium(ctx context.Context, userID uuid.UUID) (*models.CreditAccount, error) {
	var result *models.CreditAccount
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

		acct.IsPremium = !acct.IsPremium
		action := models.LedgerActionPremiumOff
		message := "premium disabled by admin"
		if acct.IsPremium {
			action = models.LedgerActionPremiumOn
			message = "premium enabled by admin"
		}

		if err := appendEntry(ctx, tx, userID, action, decimal.Zero, acct.Credits, message); err != nil {
			return err
		}
		if err := saveAccount(ctx, tx, acct); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		result = acct
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "credits").
		Str("user_id", userID.String()).
		Bool("is_premium", result.IsPremium).
		Msg("Premium flag toggled")
	return result, nil
}

// ResetAll refills every non-premium account to its daily limit, as if the
// daily reset had just fired for each. Accounts already at their limit are
// still stamped and receive a ledger entry, which keeps the operation
// idempotent in effect but observable per run. Returns the number of
// accounts reset.
func (s *Service) ResetAll(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id FROM credit_accounts WHERE NOT is_premium`)
	if err != nil {
		return 0, fmt.Errorf("failed to list credit accounts: %w", err)
	}
	userIDs := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan account id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	reset := 0
	for _, userID := range userIDs {
		var didReset bool
		err := s.withRetry(ctx, func(ctx context.Context) error {
			var rerr error
			didReset, rerr = s.resetOne(ctx, userID)
			return rerr
		})
		if err != nil {
			// One bad account should not abort the sweep.
			log.Error().
				Str("component", "credits").
				Str("user_id", userID.String()).
				Err(err).
				Msg("Failed to reset account")
			continue
		}
		if !didReset {
			continue
		}
		if s.cache != nil {
			s.cache.InvalidateBalance(ctx, userID)
		}
		reset++
	}

	log.Info().
		Str("component", "credits").
		Int("accounts_reset", reset).
		Msg("Global credit reset completed")
	return reset, nil
}

// resetOne refills a single account under its row lock. It reports false
// without touching the account when it turned premium between the listing
// and the lock.
func (s *Service) resetOne(ctx context.Context, userID uuid.UUID) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	acct, err := s.lockAccount(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	if acct.IsPremium {
		return false, nil
	}

	now := time.Now().UTC()
	delta := decimal.NewFromInt(acct.DailyLimit).Sub(acct.Credits)
	acct.Credits = decimal.NewFromInt(acct.DailyLimit)
	acct.LastResetAt = now

	if err := appendEntry(ctx, tx, userID, models.LedgerActionReset, delta, acct.Credits, "global credit reset"); err != nil {
		return false, err
	}
	if err := saveAccount(ctx, tx, acct); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// GetDefaultPolicy returns the provisioning defaults for new accounts
func (s *Service) GetDefaultPolicy(ctx context.Context) (*models.DefaultPolicy, error) {
	var policy models.DefaultPolicy
	err := s.db.QueryRow(ctx, `
		SELECT default_credits, default_daily_limit, updated_at FROM default_policy WHERE singleton
	`).Scan(&policy.DefaultCredits, &policy.DefaultDailyLimit, &policy.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.DefaultPolicy{
				DefaultCredits:    s.cfg.DefaultCredits,
				DefaultDailyLimit: s.cfg.DefaultDailyLimit,
			}, nil
		}
		return nil, fmt.Errorf("failed to read default policy: %w", err)
	}
	return &policy, nil
}

// UpdateDefaultPolicy changes the defaults applied to accounts created from
// now on. Existing accounts are not rewritten.
func (s *Service) UpdateDefaultPolicy(ctx context.Context, defaultCredits, defaultDailyLimit int64) (*models.DefaultPolicy, error) {
	if defaultCredits < 0 || defaultDailyLimit < 0 {
		return nil, ErrInvalidAmount
	}

	var policy models.DefaultPolicy
	err := s.db.QueryRow(ctx, `
		INSERT INTO default_policy (singleton, default_credits, default_daily_limit, updated_at)
		VALUES (TRUE, $1, $2, NOW())
		ON CONFLICT (singleton) DO UPDATE
		SET default_credits = EXCLUDED.default_credits,
		    default_daily_limit = EXCLUDED.default_daily_limit,
		    updated_at = NOW()
		RETURNING default_credits, default_daily_limit, updated_at
	`, defaultCredits, defaultDailyLimit).Scan(&policy.DefaultCredits, &policy.DefaultDailyLimit, &policy.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update default policy: %w", err)
	}

	log.Info().
		Str("component", "credits").
		Int64("default_credits", policy.DefaultCredits).
		Int64("default_daily_limit", policy.DefaultDailyLimit).
		Msg("Default credit policy updated")
	return &policy, nil
}
