package chat

import (
	"context"
	"errors"
	"time"

	"github.com/codelyst/projmart/internal/credits"
	"github.com/codelyst/projmart/internal/monitoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the upstream breaker is open
var ErrCircuitOpen = errors.New("completion upstream is unavailable")

// defaultCost is the credit price of one chat message
var defaultCost = decimal.NewFromInt(1)

// Service charges credits for AI chat messages and forwards them to the
// model upstream. Credits are debited before the upstream call; an
// upstream failure after a successful debit is not refunded.
type Service struct {
	completer Completer
	credits   *credits.Service
	breaker   *gobreaker.CircuitBreaker
}

// NewService creates a chat service around the given completer
func NewService(completer Completer, creditSvc *credits.Service) *Service {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "completion-upstream",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info().
				Str("circuit_breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Only upstream faults trip the breaker.
			return !errors.Is(err, ErrUpstreamError) && !errors.Is(err, ErrUpstreamTimeout)
		},
	})
	return &Service{
		completer: completer,
		credits:   creditSvc,
		breaker:   cb,
	}
}

// SendResult carries the model reply together with the balance after the
// debit, so clients can show both in one round trip
type SendResult struct {
	Reply     string          `json:"reply"`
	Model     string          `json:"model,omitempty"`
	Credits   decimal.Decimal `json:"credits"`
	Unlimited bool            `json:"unlimited"`
}

// Send debits one credit for the message and forwards it upstream.
// Insufficient credits fail before anything is sent.
func (s *Service) Send(ctx context.Context, userID uuid.UUID, req *CompletionRequest) (*SendResult, error) {
	consumed, err := s.credits.Consume(ctx, userID, defaultCost, "chat message")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := s.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return s.completer.Complete(ctx, req)
	})
	monitoring.RecordCompletionLatency(time.Since(start))
	if err != nil {
		monitoring.RecordCompletionRequest("error")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().
				Str("component", "chat").
				Str("user_id", userID.String()).
				Msg("Circuit breaker is open, rejecting request")
			return nil, ErrCircuitOpen
		}
		log.Error().
			Str("component", "chat").
			Str("user_id", userID.String()).
			Err(err).
			Msg("Completion upstream failed after debit")
		return nil, err
	}

	monitoring.RecordCompletionRequest("success")
	resp := raw.(*CompletionResponse)
	return &SendResult{
		Reply:     resp.Reply,
		Model:     resp.Model,
		Credits:   consumed.Credits,
		Unlimited: consumed.Unlimited,
	}, nil
}
