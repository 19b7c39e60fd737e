// Package claim implements the claim calculation engine. It consumes risk
// events plus a product's payout rule set and a policy's coverage
// parameters, and emits at most one claim draft per frequency period. The
// engine is pure computation and reads only payout rules, never risk rules.
package claim

import (
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"indexcover/internal/timealign"
	"indexcover/internal/types"
)

var oneHundred = decimal.NewFromInt(100)

// Input bundles one claim computation request. Events are expected in the
// order the fact store returned them (time-ordered); within a period the
// first occurrence wins tier ties. Coverage is the policy's coverage
// window; Display, when set, clips emitted drafts by triggered_at.
type Input struct {
	Events         []types.RiskEvent
	Payout         types.PayoutRules
	PolicyID       string
	ProductID      string
	ProductVersion string
	CoverageAmount decimal.Decimal
	PolicyZone     *time.Location
	RegionCode     string
	DataType       types.DataType
	Coverage       types.TimeRange
	Display        *types.TimeRange
}

// Calculator applies tier-differential payout logic. The zero value is not
// usable; construct with a logger.
type Calculator struct {
	log *slog.Logger
}

// NewCalculator returns a claim calculator that logs expected-outcome
// warnings (predicted input, unrecognized frequency limit) to the given
// logger.
func NewCalculator(log *slog.Logger) *Calculator {
	return &Calculator{log: log}
}

// Calculate groups the policy's risk events into frequency periods and
// emits one draft per period for the highest tier reached in it.
//
// Predicted data never generates claims: the gate returns an empty result,
// not an error. Lower-tier events inside a period that already has a higher
// tier produce nothing; that is the tier-differential rule.
func (c *Calculator) Calculate(in Input) ([]types.ClaimDraft, error) {
	if in.DataType != types.DataHistorical {
		c.log.Warn("claim calculation only consumes historical data, returning empty result",
			"policy_id", in.PolicyID,
			"data_type", string(in.DataType),
		)
		return nil, nil
	}
	if len(in.Events) == 0 {
		return nil, nil
	}

	// Coverage-window filter comes first; the display clip at the end is a
	// separate concern.
	covered := make([]types.RiskEvent, 0, len(in.Events))
	for _, e := range in.Events {
		if in.Coverage.Contains(e.Timestamp.UTC()) {
			covered = append(covered, e)
		}
	}
	if len(covered) == 0 {
		return nil, nil
	}

	frequency := c.effectiveFrequency(in.Payout.FrequencyLimit, in.PolicyID)
	groups, keys := groupByPeriod(covered, frequency, in.PolicyZone)

	var drafts []types.ClaimDraft
	for _, key := range keys {
		draft, ok := c.periodClaim(groups[key], frequency, in)
		if ok {
			drafts = append(drafts, draft)
		}
	}

	if in.Display != nil && in.Display.Valid() {
		clipped := drafts[:0]
		for _, d := range drafts {
			if in.Display.Contains(d.TriggeredAt) {
				clipped = append(clipped, d)
			}
		}
		drafts = clipped
	}

	return drafts, nil
}

// effectiveFrequency normalizes the payout rule's frequency limit. An
// unrecognized value falls back to once-per-day with a warning; this is
// observed legacy behavior, deliberately not promoted to a fatal error.
func (c *Calculator) effectiveFrequency(limit types.FrequencyLimit, policyID string) types.FrequencyLimit {
	switch limit {
	case types.OncePerDayPerPolicy, types.OncePerMonthPerPolicy:
		return limit
	default:
		c.log.Warn("unrecognized frequency_limit, defaulting to once per day",
			"policy_id", policyID,
			"frequency_limit", string(limit),
		)
		return types.OncePerDayPerPolicy
	}
}

// groupByPeriod buckets events by their natural-day or natural-month key in
// the policy's time zone, preserving input order within each bucket. Keys
// are returned sorted so output ordering is deterministic.
func groupByPeriod(events []types.RiskEvent, frequency types.FrequencyLimit, loc *time.Location) (map[string][]types.RiskEvent, []string) {
	groups := make(map[string][]types.RiskEvent)
	var keys []string
	for _, e := range events {
		var key string
		if frequency == types.OncePerMonthPerPolicy {
			key = timealign.NaturalMonthKey(e.Timestamp, loc)
		} else {
			key = timealign.NaturalDateKey(e.Timestamp, loc)
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], e)
	}
	sort.Strings(keys)
	return groups, keys
}

// periodClaim applies the tier-differential rule to one period's events:
// only the highest tier pays, first occurrence wins ties, and the payout is
// capped with a minimum, never scaled down proportionally.
func (c *Calculator) periodClaim(events []types.RiskEvent, frequency types.FrequencyLimit, in Input) (types.ClaimDraft, bool) {
	if len(events) == 0 {
		return types.ClaimDraft{}, false
	}

	best := events[0]
	for _, e := range events[1:] {
		if e.TierLevel > best.TierLevel {
			best = e
		}
	}

	percentage := in.Payout.PayoutPercentages.ForTier(best.TierLevel)
	if percentage.IsZero() {
		return types.ClaimDraft{}, false
	}

	amount := in.CoverageAmount.Mul(percentage.Div(oneHundred))
	if in.Payout.TotalCap != nil {
		capped := in.CoverageAmount.Mul(in.Payout.TotalCap.Div(oneHundred))
		if amount.GreaterThan(capped) {
			amount = capped
		}
	}

	var periodStart, periodEnd time.Time
	if frequency == types.OncePerMonthPerPolicy {
		periodStart, periodEnd = timealign.NaturalMonthRange(best.Timestamp, in.PolicyZone)
	} else {
		periodStart, periodEnd = timealign.NaturalDayRange(best.Timestamp, in.PolicyZone)
	}

	return types.ClaimDraft{
		PolicyID:         in.PolicyID,
		ProductID:        in.ProductID,
		ProductVersion:   in.ProductVersion,
		RiskEventID:      best.ID,
		RegionCode:       in.RegionCode,
		TierLevel:        best.TierLevel,
		PayoutPercentage: percentage,
		PayoutAmount:     amount,
		TriggeredAt:      best.Timestamp.UTC(),
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		Status:           types.ClaimComputed,
		Source:           "task",
	}, true
}
