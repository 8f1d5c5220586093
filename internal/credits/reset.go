package credits

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// needsReset reports whether the lazy daily refill applies: the current UTC
// calendar day is strictly later than the day of the last reset. Elapsed
// hours do not matter, only the date boundary.
func needsReset(lastResetAt, now time.Time) bool {
	last := lastResetAt.UTC()
	n := now.UTC()
	if n.Year() != last.Year() {
		return n.Year() > last.Year()
	}
	return n.YearDay() > last.YearDay()
}

// withRetry runs op, retrying on serialization and deadlock failures up to
// the configured attempt count. Exhausted retries surface as
// ErrTransientFailure so callers can map them to a retryable response.
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
			Str("component", "credits").
			Int("attempt", i+1).
			Int("max_attempts", attempts).
			Err(err).
			Msg("Retrying credit transaction after conflict")
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
