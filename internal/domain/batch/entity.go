// internal/domain/batch/entity.go
package batch

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus represents the lifecycle state of a purchase lot
type BatchStatus string

const (
	StatusActive    BatchStatus = "active"
	StatusDepleted  BatchStatus = "depleted"
	StatusExpired   BatchStatus = "expired"
	StatusCancelled BatchStatus = "cancelled"
)

// Batch is one purchase lot in the cost ledger. Rows are append-only:
// remaining_quantity only ever decreases, status flips to depleted exactly
// when it reaches zero, and lots are cancelled rather than deleted.
type Batch struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	ProductID         uint            `gorm:"not null;index" json:"product_id"`
	BatchNumber       string          `gorm:"uniqueIndex;size:50" json:"batch_number"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	InitialQuantity   int             `gorm:"not null" json:"initial_quantity"`
	RemainingQuantity int             `gorm:"not null" json:"remaining_quantity"`
	PurchaseDate      time.Time       `gorm:"not null;index" json:"purchase_date"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	Supplier          string          `gorm:"size:255" json:"supplier"`
	IsSynthetic       bool            `gorm:"default:false" json:"is_synthetic"`
	Status            BatchStatus     `gorm:"default:'active';index" json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName overrides
func (Batch) TableName() string { return "batches" }

// IsAvailable reports whether the lot can still be consumed
func (b *Batch) IsAvailable() bool {
	return b.Status == StatusActive && b.RemainingQuantity > 0
}

// ConsumedQuantity returns how many units have been drawn from the lot
func (b *Batch) ConsumedQuantity() int {
	return b.InitialQuantity - b.RemainingQuantity
}
