// Package lock provides the mutually-exclusive lease guarding each
// computation unit. The contract is minimal by design: TryAcquire is
// non-blocking, the TTL bounds the blast radius of a crashed holder, and
// Release is idempotent and tolerant of already-expired leases. Any lease
// primitive with those properties satisfies it.
package lock

import (
	"context"
	"fmt"
	"time"

	"indexcover/internal/types"
)

// Lease is the distributed lock contract used by compute tasks. A false
// return from TryAcquire means another worker holds the unit; the caller
// reports a skipped outcome and moves on, it never blocks or retries.
type Lease interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RiskKey builds the lock key for one risk computation unit. The key pins
// the exact UTC range so overlapping recomputations of different ranges do
// not contend.
func RiskKey(productID, regionCode string, rangeStart, rangeEnd time.Time) string {
	return fmt.Sprintf("risk_calc:%s:%s:%s:%s",
		productID, regionCode,
		rangeStart.UTC().Format(time.RFC3339),
		rangeEnd.UTC().Format(time.RFC3339),
	)
}

// ClaimKey builds the lock key for one claim computation unit: same policy
// plus same settlement window are mutually exclusive.
func ClaimKey(policyID string, rangeStart, rangeEnd time.Time) string {
	return fmt.Sprintf("claim_calc:%s:%s:%s",
		policyID,
		rangeStart.UTC().Format(time.RFC3339),
		rangeEnd.UTC().Format(time.RFC3339),
	)
}

func wrapErr(op string, err error) error {
	return types.NewAppError(types.ErrCodeInternalLock, "lock "+op+" failed", err)
}
