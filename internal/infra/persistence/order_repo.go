package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/uniedit/paystatus/internal/domain/order"
	"github.com/uniedit/paystatus/internal/infra/persistence/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Find(ctx context.Context, orderID string) (*order.Order, error) {
	var ent entity.OrderEntity
	err := r.db.WithContext(ctx).First(&ent, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return ent.ToDomain(), nil
}

// UpdateStatus writes the new status in its own transaction, locking the row
// so concurrent updates to the same order serialize.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order, status order.Status) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ent entity.OrderEntity
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ent, "id = ?", o.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return order.ErrOrderNotFound
			}
			return err
		}
		return tx.Model(&ent).Update("status", status.String()).Error
	})
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return err
		}
		return fmt.Errorf("update order status: %w", err)
	}
	o.Status = status
	return nil
}

// Create inserts an order. The checkout flow owns order creation; this is
// used to seed fixtures.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if err := r.db.WithContext(ctx).Create(entity.FromDomainOrder(o)).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// Compile-time check that OrderRepository implements order.Repository.
var _ order.Repository = (*OrderRepository)(nil)
