package entity

import (
	"time"

	"github.com/gatewayconnect/server/internal/module/payment/domain"
)

// CorrelationEntity is the GORM entity for a transaction correlation record.
type CorrelationEntity struct {
	ID                  uint    `gorm:"primaryKey;autoIncrement"`
	PlatformToken       string  `gorm:"not null;uniqueIndex:ux_correlations_platform_token"`
	OrderNumber         *string `gorm:"index:ix_correlations_order_number"`
	Provider            string  `gorm:"not null"`
	ProviderOperationID *string `gorm:"index:ix_correlations_provider_operation_id"`
	CallbackURL         string  `gorm:"not null"`
	Status              *string
	Amount              *int64
	Currency            *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName returns the database table name.
func (CorrelationEntity) TableName() string {
	return "transaction_correlations"
}

// ToDomain converts entity to domain Correlation.
func (e *CorrelationEntity) ToDomain() *domain.Correlation {
	return &domain.Correlation{
		PlatformToken:       e.PlatformToken,
		OrderNumber:         e.OrderNumber,
		Provider:            e.Provider,
		ProviderOperationID: e.ProviderOperationID,
		CallbackURL:         e.CallbackURL,
		Status:              e.Status,
		Amount:              e.Amount,
		Currency:            e.Currency,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

// FromDomainCorrelation converts domain Correlation to entity.
func FromDomainCorrelation(c *domain.Correlation) *CorrelationEntity {
	return &CorrelationEntity{
		PlatformToken:       c.PlatformToken,
		OrderNumber:         c.OrderNumber,
		Provider:            c.Provider,
		ProviderOperationID: c.ProviderOperationID,
		CallbackURL:         c.CallbackURL,
		Status:              c.Status,
		Amount:              c.Amount,
		Currency:            c.Currency,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}
