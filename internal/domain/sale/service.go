// internal/domain/sale/service.go
package sale

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/pos-backend/internal/config"
	"github.com/your-org/pos-backend/internal/domain/batch"
	"github.com/your-org/pos-backend/internal/domain/product"
	"github.com/your-org/pos-backend/internal/pkg/apperr"
	"github.com/your-org/pos-backend/internal/pkg/txn"
	"gorm.io/gorm"
)

// Service drives a sale through
// Validate -> Allocate -> VerifyTotals -> CommitLedger -> PersistSale -> Rollup.
type Service struct {
	runner         txn.Runner
	config         *config.Config
	log            *logrus.Logger
	productService *product.Service
	batchService   *batch.Service
	rollups        *product.RollupQueue
}

// NewService creates a new sale service. rollups may be nil, in which case
// (and in sync rollup mode) rollups run before the sale returns.
func NewService(runner txn.Runner, cfg *config.Config, log *logrus.Logger,
	productService *product.Service, batchService *batch.Service, rollups *product.RollupQueue) *Service {
	return &Service{
		runner:         runner,
		config:         cfg,
		log:            log,
		productService: productService,
		batchService:   batchService,
		rollups:        rollups,
	}
}

// SaleLineRequest represents one submitted receipt position
type SaleLineRequest struct {
	ProductID   uint            `json:"product_id" binding:"required"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
	LineTotal   decimal.Decimal `json:"line_total" binding:"required"`
}

// CreateSaleRequest represents checkout data
type CreateSaleRequest struct {
	// Cashier is filled from the access token when the client omits it.
	Cashier       string            `json:"cashier"`
	PaymentMethod string            `json:"payment_method" binding:"required"`
	Lines         []SaleLineRequest `json:"lines" binding:"required"`
	TotalAmount   decimal.Decimal   `json:"total_amount" binding:"required"`
}

// validatedLine carries a line that passed validation together with its
// catalog snapshot.
type validatedLine struct {
	req     SaleLineRequest
	product *product.Product
	name    string
}

// CreateSale validates the submitted sale, allocates every line against the
// FIFO ledger and commits all batch decrements plus the sale record as one
// unit. Nothing is persisted if any line fails.
func (s *Service) CreateSale(req *CreateSaleRequest) (*Sale, error) {
	lines, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &Sale{
		ReceiptNumber: GenerateReceiptNumber(now),
		Cashier:       req.Cashier,
		PaymentMethod: req.PaymentMethod,
		TotalAmount:   req.TotalAmount,
	}

	touched := make([]uint, 0, len(lines))

	err = s.runner.Run(func(tx *gorm.DB) error {
		record.Lines = record.Lines[:0]

		// Allocate every line before applying any decrement so the sale
		// either fully allocates or fully aborts. The shared reservation
		// keeps repeated-product lines from claiming the same units twice.
		reserved := batch.Reservation{}
		plans := make([]*batch.Plan, 0, len(lines))
		for _, line := range lines {
			plan, err := s.batchService.PlanAllocation(tx, line.req.ProductID, line.req.Quantity, reserved)
			if err != nil {
				return err
			}
			plans = append(plans, plan)
		}

		for i, line := range lines {
			if err := s.batchService.CommitPlan(tx, plans[i]); err != nil {
				return err
			}

			saleLine := SaleLine{
				ProductID:   line.req.ProductID,
				ProductName: line.name,
				Quantity:    line.req.Quantity,
				UnitPrice:   line.req.UnitPrice,
				LineTotal:   line.req.LineTotal,
			}
			for _, a := range plans[i].Allocations {
				qty := decimal.NewFromInt(int64(a.Quantity))
				saleLine.Allocations = append(saleLine.Allocations, BatchAllocation{
					BatchID:     a.BatchID,
					BatchNumber: a.BatchNumber,
					Quantity:    a.Quantity,
					UnitCost:    a.UnitCost,
					UnitPrice:   line.req.UnitPrice,
					Profit:      line.req.UnitPrice.Sub(a.UnitCost).Mul(qty),
				})
			}
			record.Lines = append(record.Lines, saleLine)
		}

		if err := tx.Create(record).Error; err != nil {
			return apperr.NewPersistence("persist sale", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		touched = append(touched, line.req.ProductID)
	}
	s.scheduleRollups(touched)

	return record, nil
}

// validate runs the pre-mutation checks: line shape, catalog price drift and
// total consistency. Epsilon guards against stale-client submissions without
// rejecting equivalent decimal representations.
func (s *Service) validate(req *CreateSaleRequest) ([]validatedLine, error) {
	if len(req.Lines) == 0 {
		return nil, apperr.NewFieldValidation("lines", "sale must contain at least one line")
	}

	epsilon := s.config.Ledger.PriceEpsilon
	lines := make([]validatedLine, 0, len(req.Lines))
	computedTotal := decimal.Zero

	for _, lr := range req.Lines {
		if lr.Quantity <= 0 {
			return nil, apperr.NewFieldValidation("quantity", "must be a positive integer, got %d", lr.Quantity)
		}

		p, err := s.productService.GetActiveProduct(lr.ProductID)
		if err != nil {
			return nil, err
		}

		if lr.UnitPrice.Sub(p.Price).Abs().GreaterThan(epsilon) {
			return nil, &apperr.PriceMismatchError{
				ProductID: lr.ProductID,
				Submitted: lr.UnitPrice,
				Current:   p.Price,
			}
		}

		expectedLineTotal := lr.UnitPrice.Mul(decimal.NewFromInt(int64(lr.Quantity)))
		if lr.LineTotal.Sub(expectedLineTotal).Abs().GreaterThan(epsilon) {
			return nil, &apperr.TotalMismatchError{
				Declared: lr.LineTotal,
				Computed: expectedLineTotal,
			}
		}

		name := lr.ProductName
		if name == "" {
			name = p.Name
		}

		lines = append(lines, validatedLine{req: lr, product: p, name: name})
		computedTotal = computedTotal.Add(lr.LineTotal)
	}

	if req.TotalAmount.Sub(computedTotal).Abs().GreaterThan(epsilon) {
		return nil, &apperr.TotalMismatchError{
			Declared: req.TotalAmount,
			Computed: computedTotal,
		}
	}

	return lines, nil
}

// scheduleRollups recomputes touched products. The sale record is already
// authoritative at this point; displayed on-hand quantities lag until the
// rollup lands.
func (s *Service) scheduleRollups(productIDs []uint) {
	seen := make(map[uint]bool, len(productIDs))
	for _, id := range productIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if s.rollups != nil && s.config.Ledger.RollupAsync() {
			s.rollups.Enqueue(id)
			continue
		}
		if err := s.productService.RefreshRollup(nil, id); err != nil {
			s.log.WithField("product_id", id).WithError(err).Error("rollup recomputation failed")
		}
	}
}

// GetSale retrieves a sale with lines and allocation provenance
func (s *Service) GetSale(id uint) (*Sale, error) {
	var record Sale
	err := s.runner.DB().
		Preload("Lines.Allocations").
		Preload("Lines").
		First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFound("sale", id)
		}
		return nil, apperr.NewPersistence("get sale", err)
	}
	return &record, nil
}

// SaleListRequest represents sale list query parameters
type SaleListRequest struct {
	Page  int    `form:"page,default=1"`
	Limit int    `form:"limit,default=20"`
	From  string `form:"from"`
	To    string `form:"to"`
}

// SaleListResponse represents sales with pagination
type SaleListResponse struct {
	Sales      []Sale     `json:"sales"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// GetSales lists sales newest-first with optional date filtering
func (s *Service) GetSales(req *SaleListRequest) (*SaleListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	query := s.runner.DB().Model(&Sale{}).Preload("Lines.Allocations").Preload("Lines")
	if req.From != "" {
		query = query.Where("created_at >= ?", req.From)
	}
	if req.To != "" {
		query = query.Where("created_at <= ?", req.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperr.NewPersistence("count sales", err)
	}

	var sales []Sale
	offset := (req.Page - 1) * req.Limit
	if err := query.Order("created_at desc").Offset(offset).Limit(req.Limit).Find(&sales).Error; err != nil {
		return nil, apperr.NewPersistence("list sales", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &SaleListResponse{
		Sales: sales,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}
