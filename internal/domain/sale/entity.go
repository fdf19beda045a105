// internal/domain/sale/entity.go
package sale

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is one completed checkout. Sales are append-only: corrections are
// made with new compensating sales, never in-place edits.
type Sale struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ReceiptNumber string          `gorm:"uniqueIndex;not null;size:50" json:"receipt_number"`
	Cashier       string          `gorm:"not null;size:100" json:"cashier"`
	PaymentMethod string          `gorm:"not null;size:50" json:"payment_method"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`

	// Relationships
	Lines []SaleLine `gorm:"foreignKey:SaleID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"lines"`
}

// SaleLine is one product position on the receipt, with name and price
// snapshots taken at sale time.
type SaleLine struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	SaleID      uint            `gorm:"not null;index" json:"sale_id"`
	ProductID   uint            `gorm:"not null;index" json:"product_id"`
	ProductName string          `gorm:"not null;size:255" json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`

	// Relationships
	Allocations []BatchAllocation `gorm:"foreignKey:SaleLineID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"batch_allocations"`
}

// BatchAllocation records which lot a slice of a sale line was drawn from,
// with the cost and price snapshots that make realized profit reproducible.
type BatchAllocation struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	SaleLineID  uint            `gorm:"not null;index" json:"-"`
	BatchID     uint            `gorm:"not null;index" json:"batch_id"`
	BatchNumber string          `gorm:"size:50" json:"batch_number"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitCost    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Profit      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"profit"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName overrides
func (Sale) TableName() string            { return "sales" }
func (SaleLine) TableName() string        { return "sale_lines" }
func (BatchAllocation) TableName() string { return "batch_allocations" }

// Revenue returns the sum of line totals
func (s *Sale) Revenue() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// AllocatedCost returns the cost of goods drawn for the line, and whether
// allocation provenance exists at all. Sales recorded before the ledger have
// no allocations and fall back to the product's current cost.
func (l *SaleLine) AllocatedCost() (decimal.Decimal, bool) {
	if len(l.Allocations) == 0 {
		return decimal.Zero, false
	}
	cost := decimal.Zero
	for _, a := range l.Allocations {
		cost = cost.Add(a.UnitCost.Mul(decimal.NewFromInt(int64(a.Quantity))))
	}
	return cost, true
}

// GenerateReceiptNumber creates a unique receipt reference
func GenerateReceiptNumber(now time.Time) string {
	// Format: RCP-YYYYMMDD-XXXXXXXX
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("RCP-%s-%s", now.Format("20060102"), suffix)
}
