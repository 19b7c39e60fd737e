// Package facts derives the deterministic identifiers and audit hashes that
// make fact writes idempotent. Identical defining attributes always yield
// the identical ID, so re-running a computation can only ever re-derive
// rows that already exist.
package facts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"indexcover/internal/types"
)

const (
	riskEventIDPrefix = "re_"
	claimIDPrefix     = "cl_"
	digestLen         = 32
)

// RiskEventID derives the deterministic identifier for a risk event from
// its defining attributes. A nil prediction run is encoded as the literal
// "null" so historical and predicted facts can never collide.
func RiskEventID(e types.RiskEvent) string {
	runID := "null"
	if e.PredictionRunID != nil && *e.PredictionRunID != "" {
		runID = *e.PredictionRunID
	}
	raw := strings.Join([]string{
		e.ProductID,
		e.ProductVersion,
		e.RegionCode,
		e.Timestamp.UTC().Format(time.RFC3339),
		string(e.WeatherType),
		fmt.Sprintf("%d", e.TierLevel),
		string(e.DataType),
		runID,
	}, "|")
	return riskEventIDPrefix + digest(raw)
}

// ClaimID derives the deterministic identifier for a claim draft. The key
// matches the claims table's uniqueness contract: policy, trigger instant,
// tier.
func ClaimID(policyID string, triggeredAt time.Time, tier types.TierLevel) string {
	raw := fmt.Sprintf("%s|%s|%d", policyID, triggeredAt.UTC().Format(time.RFC3339), tier)
	return claimIDPrefix + digest(raw)
}

// HashPayoutRules returns the canonical sha256 of a payout rule set,
// stamped onto claims so an auditor can tell which rule version produced a
// payout. Field order is fixed by the struct, so the hash is stable.
func HashPayoutRules(rules types.PayoutRules) (string, error) {
	serialized, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("facts: failed to serialize payout rules: %w", err)
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

func digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:digestLen]
}
