package domain

import (
	"errors"
	"time"
)

// Correlation links a platform transaction to the provider operation serving it.
// Nil pointer fields are unknown; on upsert they leave stored values untouched.
type Correlation struct {
	PlatformToken       string
	OrderNumber         *string
	Provider            string
	ProviderOperationID *string
	CallbackURL         string
	Status              *string
	Amount              *int64
	Currency            *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OperationID returns the provider operation id or "".
func (c *Correlation) OperationID() string {
	if c == nil || c.ProviderOperationID == nil {
		return ""
	}
	return *c.ProviderOperationID
}

// Optional returns a pointer to s, or nil when s is empty.
func Optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ErrCorrelationNotFound is returned when no correlation record matches a key.
var ErrCorrelationNotFound = errors.New("correlation not found")
