package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"github.com/gatewayconnect/server/internal/module/payment/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the correlation store shared by adapters, the webhook verifier
// and the admin override.
type Repository interface {
	// Upsert creates or merges the record keyed by PlatformToken. Nil fields keep
	// stored values; Provider and CallbackURL always overwrite.
	Upsert(ctx context.Context, c *domain.Correlation) error
	// FindByKey resolves key as a platform token first, then as an order number.
	FindByKey(ctx context.Context, key string) (*domain.Correlation, error)
	// FindByOperationID resolves a provider operation id.
	FindByOperationID(ctx context.Context, operationID string) (*domain.Correlation, error)
	// UpdateStatus sets the raw provider status of the record with the given token.
	UpdateStatus(ctx context.Context, platformToken, status string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new correlation repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// AutoMigrate creates or updates the correlation table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&entity.CorrelationEntity{})
}

const correlationTable = "transaction_correlations"

func coalesce(column string) clause.Expr {
	return gorm.Expr(fmt.Sprintf("COALESCE(excluded.%s, %s.%s)", column, correlationTable, column))
}

func (r *repository) Upsert(ctx context.Context, c *domain.Correlation) error {
	if c.PlatformToken == "" {
		return fmt.Errorf("upsert correlation: empty platform token")
	}

	ent := entity.FromDomainCorrelation(c)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform_token"}},
		DoUpdates: clause.Assignments(map[string]any{
			"order_number":          coalesce("order_number"),
			"provider_operation_id": coalesce("provider_operation_id"),
			"status":                coalesce("status"),
			"amount":                coalesce("amount"),
			"currency":              coalesce("currency"),
			"provider":              gorm.Expr("excluded.provider"),
			"callback_url":          gorm.Expr("excluded.callback_url"),
			"updated_at":            gorm.Expr("excluded.updated_at"),
		}),
	}).Create(ent).Error
	if err != nil {
		return fmt.Errorf("upsert correlation: %w", err)
	}
	return nil
}

func (r *repository) FindByKey(ctx context.Context, key string) (*domain.Correlation, error) {
	if key == "" {
		return nil, domain.ErrCorrelationNotFound
	}

	var ent entity.CorrelationEntity
	err := r.db.WithContext(ctx).Where("platform_token = ?", key).Take(&ent).Error
	if err == nil {
		return ent.ToDomain(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find correlation by token: %w", err)
	}

	err = r.db.WithContext(ctx).Where("order_number = ?", key).Order("updated_at DESC, id DESC").Take(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCorrelationNotFound
		}
		return nil, fmt.Errorf("find correlation by order number: %w", err)
	}
	return ent.ToDomain(), nil
}

func (r *repository) FindByOperationID(ctx context.Context, operationID string) (*domain.Correlation, error) {
	if operationID == "" {
		return nil, domain.ErrCorrelationNotFound
	}

	var ent entity.CorrelationEntity
	err := r.db.WithContext(ctx).Where("provider_operation_id = ?", operationID).Order("updated_at DESC, id DESC").Take(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCorrelationNotFound
		}
		return nil, fmt.Errorf("find correlation by operation id: %w", err)
	}
	return ent.ToDomain(), nil
}

func (r *repository) UpdateStatus(ctx context.Context, platformToken, status string) error {
	result := r.db.WithContext(ctx).
		Model(&entity.CorrelationEntity{}).
		Where("platform_token = ?", platformToken).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("update correlation status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrCorrelationNotFound
	}
	return nil
}
