package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"
)

// Transport hands envelopes to the outside world.
type Transport interface {
	// Verify probes connectivity and credentials.
	Verify(ctx context.Context) error
	// Send delivers env and returns the message id assigned to it.
	Send(ctx context.Context, env *Envelope) (string, error)
}

// Diagnosis classifies a transport failure.
type Diagnosis struct {
	// Code is a short category such as "auth" or "dial".
	Code string
	// Temporary is set when a later send may succeed unchanged.
	Temporary bool
}

// Diagnoser is implemented by transports that can classify their failures.
type Diagnoser interface {
	Diagnose(err error) Diagnosis
}

// Observer receives delivery events, e.g. for metrics.
type Observer interface {
	ObserveAttempt(err error)
	ObserveSend(result SendResult, err error, elapsed time.Duration)
}

type retrier struct {
	transport Transport
	attempts  int
	delay     time.Duration
	logger    *log.Logger
	observer  Observer
	// wait is called before every retry; tests use it to count delays.
	wait func(time.Duration)
}

// deliver tries the transport up to r.attempts times with a constant delay
// between attempts.
func (r *retrier) deliver(ctx context.Context, env *Envelope) (SendResult, error) {
	if r.transport == nil {
		return SendResult{}, fmt.Errorf("%w: transport not configured", ErrConfiguration)
	}

	var (
		attempt   int
		messageID string
		lastErr   error
	)

	backoff := retry.WithMaxRetries(uint64(r.attempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		if r.wait != nil {
			r.wait(r.delay)
		}
		return r.delay, false
	}))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		id, err := r.transport.Send(ctx, env)
		if r.observer != nil {
			r.observer.ObserveAttempt(err)
		}
		if err != nil {
			lastErr = err
			r.logger.Error("Delivery attempt failed", "attempt", attempt, "max", r.attempts, "error", err)
			return retry.RetryableError(err)
		}
		messageID = id
		return nil
	})
	if err != nil {
		if lastErr == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lastErr = err
		}
		derr := &DeliveryError{Attempts: attempt, Err: lastErr}
		if d, ok := r.transport.(Diagnoser); ok {
			diag := d.Diagnose(lastErr)
			derr.Code, derr.Temporary = diag.Code, diag.Temporary
		}
		return SendResult{Attempts: attempt}, derr
	}

	r.logger.Info("Email sent", "to", env.To, "message_id", messageID, "attempts", attempt)
	return SendResult{Success: true, MessageID: messageID, Attempts: attempt}, nil
}
