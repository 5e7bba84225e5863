package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/x402-gateway/internal/apierror"
	"github.com/aman-churiwal/x402-gateway/internal/models"
	"github.com/aman-churiwal/x402-gateway/internal/retry"
)

// Store holds the usage counters. ConsumeIfAllowed is the single atomic
// operation the whole quota contract rests on: create-if-absent with the
// limit snapshot, then admit and increment only if capacity remains.
// Implementations serialize per counter key; distinct keys never share a
// lock.
type Store interface {
	// ConsumeIfAllowed returns the admission decision and the counter
	// value after the call (post-increment when admitted, untouched when
	// denied) along with the limit snapshot in effect.
	ConsumeIfAllowed(ctx context.Context, key string, limit, n int64) (admitted bool, count, snapshot int64, err error)
	// Peek reads a counter without mutating it. Absent counters read as
	// zero with the supplied limit.
	Peek(ctx context.Context, key string, limit int64) (count, snapshot int64, err error)
}

// Decision is the outcome of one admission attempt.
type Decision struct {
	Admitted  bool
	Count     int64
	Limit     int64
	PeriodKey string
}

// Ledger meters usage per subscriber and billing period.
type Ledger struct {
	store Store
	retry retry.Config
	now   func() time.Time
}

func New(store Store) *Ledger {
	return &Ledger{
		store: store,
		retry: retry.Default(),
		now:   time.Now,
	}
}

// PeriodKey derives the current billing period for a subscriber. Paid
// tiers anchor periods at the moment the tier started; free and
// anonymous subscribers have no anchor and follow the UTC calendar
// month, matching how the catalog advertises the free allowance.
func (l *Ledger) PeriodKey(def models.TierDefinition, anchor time.Time) string {
	now := l.now().UTC()
	if anchor.IsZero() {
		return now.Format("2006-01")
	}

	period := time.Duration(def.PeriodDays) * 24 * time.Hour
	idx := now.Sub(anchor) / period
	if idx < 0 {
		idx = 0
	}
	return fmt.Sprintf("%s.p%d", anchor.UTC().Format("20060102150405"), idx)
}

func counterKey(subscriberID, periodKey string) string {
	return fmt.Sprintf("usage:%s:%s", subscriberID, periodKey)
}

// TryConsume charges n units against the subscriber's current period.
// The read-check-increment happens atomically in the store; a denial
// never mutates the counter. Transient store failures are retried with
// bounded backoff before surfacing as a backend-class error.
func (l *Ledger) TryConsume(ctx context.Context, subscriberID string, def models.TierDefinition, anchor time.Time, n int64) (Decision, error) {
	if n <= 0 {
		n = 1
	}

	periodKey := l.PeriodKey(def, anchor)
	key := counterKey(subscriberID, periodKey)

	var admitted bool
	var count, limit int64

	err := retry.Do(ctx, l.retry, transient, func() error {
		var opErr error
		admitted, count, limit, opErr = l.store.ConsumeIfAllowed(ctx, key, def.Limit, n)
		return opErr
	})
	if err != nil {
		return Decision{}, apierror.New(apierror.ReasonBackendUnavailable, "quota store: %v", err)
	}

	return Decision{
		Admitted:  admitted,
		Count:     count,
		Limit:     limit,
		PeriodKey: periodKey,
	}, nil
}

// Usage reports the current period's counter without consuming.
func (l *Ledger) Usage(ctx context.Context, subscriberID string, def models.TierDefinition, anchor time.Time) (models.Usage, error) {
	periodKey := l.PeriodKey(def, anchor)

	count, limit, err := l.store.Peek(ctx, counterKey(subscriberID, periodKey), def.Limit)
	if err != nil {
		return models.Usage{}, apierror.New(apierror.ReasonBackendUnavailable, "quota store: %v", err)
	}

	return models.Usage{
		SubscriberID: subscriberID,
		PeriodKey:    periodKey,
		Count:        count,
		Limit:        limit,
	}, nil
}

// transient treats every store error as retryable; classified refusals
// never reach the retry loop.
func transient(err error) bool {
	return err != nil && ctxAlive(err)
}

func ctxAlive(err error) bool {
	return err != context.Canceled && err != context.DeadlineExceeded
}
