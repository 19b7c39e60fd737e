package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RiskRulesJSON wraps RiskRules with sql.Scanner and driver.Valuer so the
// rule set round-trips through a JSONB column unchanged.
type RiskRulesJSON struct {
	RiskRules
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (r *RiskRulesJSON) Scan(value interface{}) error {
	data, err := jsonbBytes(value, "risk_rules")
	if err != nil {
		return err
	}
	if data == nil {
		*r = RiskRulesJSON{}
		return nil
	}
	return json.Unmarshal(data, &r.RiskRules)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (r RiskRulesJSON) Value() (driver.Value, error) {
	return json.Marshal(r.RiskRules)
}

// PayoutRulesJSON wraps PayoutRules for JSONB column storage.
type PayoutRulesJSON struct {
	PayoutRules
}

// Scan implements the sql.Scanner interface.
func (p *PayoutRulesJSON) Scan(value interface{}) error {
	data, err := jsonbBytes(value, "payout_rules")
	if err != nil {
		return err
	}
	if data == nil {
		*p = PayoutRulesJSON{}
		return nil
	}
	return json.Unmarshal(data, &p.PayoutRules)
}

// Value implements the driver.Valuer interface.
func (p PayoutRulesJSON) Value() (driver.Value, error) {
	return json.Marshal(p.PayoutRules)
}

func jsonbBytes(value interface{}, column string) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%s: unsupported scan type %T", column, value)
	}
}
