package domain

import "time"

// ============================================================
// Leads — contact details captured from a chat conversation
// ============================================================

// LeadTimeLayout is the ISO-8601 layout used for Lead.CreatedAt
// (UTC, millisecond precision).
const LeadTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Lead is one persisted entry of a tenant's lead ledger.
//
// Name and Phone are required. CreatedAt is assigned when the lead is
// persisted, never taken from the model output. It is kept as the raw
// ISO-8601 string so entries written by older tooling still load.
type Lead struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	PhoneE164 string `json:"phoneE164,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Issue     string `json:"issue,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// FormatLeadTime renders t in the ledger timestamp format.
func FormatLeadTime(t time.Time) string {
	return t.UTC().Format(LeadTimeLayout)
}

// ParseLeadTime parses a ledger timestamp. Any RFC 3339 value is accepted.
func ParseLeadTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// NextLeadTime returns now in ledger format, bumped to 1ms after prev when
// the clock has not advanced past it. Timestamps in a ledger are therefore
// distinct and increasing in append order.
func NextLeadTime(prev string, now time.Time) string {
	now = now.UTC().Truncate(time.Millisecond)
	if prev != "" {
		if p, err := ParseLeadTime(prev); err == nil && !now.After(p) {
			now = p.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
		}
	}
	return FormatLeadTime(now)
}
