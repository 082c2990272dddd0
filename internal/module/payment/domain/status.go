package domain

import "strings"

// Status is the canonical transaction status reported to the platform.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusRefunded Status = "refunded"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDeclined || s == StatusRefunded
}

// Vocabulary maps a provider's raw status strings to canonical statuses.
// Lookups are case-insensitive and unknown values map to pending.
type Vocabulary map[string]Status

// NewVocabulary builds a vocabulary from the raw values a provider uses for
// each terminal canonical status.
func NewVocabulary(approved, declined, refunded []string) Vocabulary {
	v := make(Vocabulary, len(approved)+len(declined)+len(refunded))
	for _, raw := range approved {
		v[normalizeKey(raw)] = StatusApproved
	}
	for _, raw := range declined {
		v[normalizeKey(raw)] = StatusDeclined
	}
	for _, raw := range refunded {
		v[normalizeKey(raw)] = StatusRefunded
	}
	return v
}

// Normalize maps a raw provider status to its canonical status.
func (v Vocabulary) Normalize(raw string) Status {
	if s, ok := v[normalizeKey(raw)]; ok {
		return s
	}
	return StatusPending
}

func normalizeKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
