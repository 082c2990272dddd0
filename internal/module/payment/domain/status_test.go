package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVocabulary_Normalize(t *testing.T) {
	v := NewVocabulary(
		[]string{"approved", "PAID"},
		[]string{"failed", "Expired"},
		[]string{"refunded"},
	)

	tests := []struct {
		raw      string
		expected Status
	}{
		{"approved", StatusApproved},
		{"APPROVED", StatusApproved},
		{"  Paid ", StatusApproved},
		{"paid", StatusApproved},
		{"failed", StatusDeclined},
		{"EXPIRED", StatusDeclined},
		{"Refunded", StatusRefunded},
		{"", StatusPending},
		{"in_progress", StatusPending},
		{"something new", StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, v.Normalize(tt.raw))
		})
	}
}

func TestVocabulary_NilIsTotal(t *testing.T) {
	var v Vocabulary
	assert.Equal(t, StatusPending, v.Normalize("approved"))
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusDeclined.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
}
