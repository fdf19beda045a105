// internal/domain/batch/allocator.go
package batch

import (
	"github.com/shopspring/decimal"
	"github.com/your-org/pos-backend/internal/pkg/apperr"
	"gorm.io/gorm"
)

// Allocation maps a slice of a requested quantity to the lot it is drawn
// from, with the cost snapshot taken at planning time.
type Allocation struct {
	BatchID     uint
	BatchNumber string
	Quantity    int
	UnitCost    decimal.Decimal
}

// Plan is the not-yet-persisted outcome of walking the ledger for one sale
// line. Several plans from one sale are committed together by the caller so
// the whole sale is a single atomic unit.
type Plan struct {
	ProductID   uint
	Requested   int
	Allocations []Allocation
}

// Reservation tracks units already claimed from each lot by earlier plans of
// the same sale. Sharing one Reservation across a sale's lines keeps the
// plans composable: two lines for the same product draw from disjoint slices
// of the ledger instead of both claiming the oldest lot.
type Reservation map[uint]int

// TotalCost returns the cost of goods the plan would consume
func (p *Plan) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.UnitCost.Mul(decimal.NewFromInt(int64(a.Quantity))))
	}
	return total
}

// PlanAllocation walks the product's available lots oldest-first and
// produces an allocation plan for the requested quantity, net of any units
// earlier plans already reserved. Nothing is mutated: the plan either covers
// the full request or the call fails with InsufficientStock carrying
// available vs requested. reserved may be nil for a single-plan caller.
func (s *Service) PlanAllocation(db *gorm.DB, productID uint, requestedQty int, reserved Reservation) (*Plan, error) {
	if requestedQty <= 0 {
		return nil, apperr.NewFieldValidation("quantity", "must be a positive integer, got %d", requestedQty)
	}

	if err := s.EnsureLegacyBacked(db, productID); err != nil {
		return nil, err
	}

	batches, err := s.ListAvailable(db, productID)
	if err != nil {
		return nil, err
	}

	available := 0
	for _, b := range batches {
		available += b.RemainingQuantity - reserved[b.ID]
	}
	if available < requestedQty {
		return nil, &apperr.InsufficientStockError{
			ProductID: productID,
			Available: available,
			Requested: requestedQty,
		}
	}

	plan := &Plan{ProductID: productID, Requested: requestedQty}
	remaining := requestedQty
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		free := b.RemainingQuantity - reserved[b.ID]
		if free <= 0 {
			continue
		}
		take := remaining
		if free < take {
			take = free
		}
		plan.Allocations = append(plan.Allocations, Allocation{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    take,
			UnitCost:    b.UnitCost,
		})
		if reserved != nil {
			reserved[b.ID] += take
		}
		remaining -= take
	}

	return plan, nil
}

// CommitPlan applies a plan's decrements. Each update is conditional on the
// lot still holding the units being taken, so two sales racing over the same
// stock cannot drive remaining_quantity negative: the slower one aborts with
// InsufficientStock instead of double-spending.
func (s *Service) CommitPlan(tx *gorm.DB, plan *Plan) error {
	for _, a := range plan.Allocations {
		result := tx.Model(&Batch{}).
			Where("id = ? AND remaining_quantity >= ?", a.BatchID, a.Quantity).
			UpdateColumn("remaining_quantity", gorm.Expr("remaining_quantity - ?", a.Quantity))
		if result.Error != nil {
			return apperr.NewPersistence("decrement batch", result.Error)
		}
		if result.RowsAffected == 0 {
			// Lost a race with a concurrent sale; report what is left now.
			var available int64
			tx.Model(&Batch{}).
				Where("product_id = ? AND status = ? ", plan.ProductID, StatusActive).
				Select("COALESCE(SUM(remaining_quantity), 0)").
				Scan(&available)
			return &apperr.InsufficientStockError{
				ProductID: plan.ProductID,
				Available: int(available),
				Requested: plan.Requested,
			}
		}

		if err := tx.Model(&Batch{}).
			Where("id = ? AND remaining_quantity = 0 AND status = ?", a.BatchID, StatusActive).
			Update("status", StatusDepleted).Error; err != nil {
			return apperr.NewPersistence("flip batch status", err)
		}
	}
	return nil
}
