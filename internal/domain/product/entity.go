// internal/domain/product/entity.go
package product

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a catalog entry. Quantity and CostPrice are derived
// from the batch ledger by the rollup; before any batch exists Quantity holds
// the legacy (pre-ledger) on-hand stock that the bridge turns into an
// opening batch.
type Product struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	SKU               string          `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Name              string          `gorm:"not null;size:255" json:"name"`
	Description       string          `gorm:"type:text" json:"description"`
	Price             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	CostPrice         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	Quantity          int             `gorm:"default:0" json:"quantity"`
	LowStockThreshold int             `gorm:"default:5" json:"low_stock_threshold"`
	IsActive          bool            `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName overrides
func (Product) TableName() string { return "products" }

// Business methods for Product

func (p *Product) IsInStock() bool {
	return p.Quantity > 0
}

func (p *Product) IsLowStock() bool {
	return p.Quantity <= p.LowStockThreshold
}
