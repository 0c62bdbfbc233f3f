package entity

import (
	"time"

	"github.com/uniedit/paystatus/internal/domain/order"
)

// OrderEntity is the GORM model for orders table.
type OrderEntity struct {
	ID         string `gorm:"primaryKey"`
	ResourceID string `gorm:"index"`
	OwnerID    string `gorm:"index"`
	Status     string `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the database table name.
func (OrderEntity) TableName() string {
	return "orders"
}

// ToDomain converts the entity to a domain Order.
func (e *OrderEntity) ToDomain() *order.Order {
	return &order.Order{
		ID:         e.ID,
		ResourceID: e.ResourceID,
		OwnerID:    e.OwnerID,
		Status:     order.Status(e.Status),
		CreatedAt:  e.CreatedAt,
	}
}

// FromDomainOrder converts a domain Order to an entity.
func FromDomainOrder(o *order.Order) *OrderEntity {
	return &OrderEntity{
		ID:         o.ID,
		ResourceID: o.ResourceID,
		OwnerID:    o.OwnerID,
		Status:     o.Status.String(),
		CreatedAt:  o.CreatedAt,
	}
}
