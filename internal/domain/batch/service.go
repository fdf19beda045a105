// internal/domain/batch/service.go
package batch

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/pos-backend/internal/config"
	"github.com/your-org/pos-backend/internal/domain/product"
	"github.com/your-org/pos-backend/internal/pkg/apperr"
	"github.com/your-org/pos-backend/internal/pkg/txn"
	"gorm.io/gorm"
)

// Service handles the batch ledger business logic
type Service struct {
	runner         txn.Runner
	config         *config.Config
	productService *product.Service
}

// NewService creates a new batch ledger service
func NewService(runner txn.Runner, cfg *config.Config, productService *product.Service) *Service {
	return &Service{
		runner:         runner,
		config:         cfg,
		productService: productService,
	}
}

// CreateBatchRequest represents restock data
type CreateBatchRequest struct {
	ProductID    uint            `json:"product_id" binding:"required"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Quantity     int             `json:"quantity" binding:"required"`
	PurchaseDate *time.Time      `json:"purchase_date,omitempty"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	Supplier     string          `json:"supplier,omitempty"`
}

// CreateBatch records a purchase lot and refreshes the product rollup
func (s *Service) CreateBatch(req *CreateBatchRequest) (*Batch, error) {
	if req.Quantity <= 0 {
		return nil, apperr.NewFieldValidation("quantity", "must be a positive integer, got %d", req.Quantity)
	}
	if req.UnitCost.IsNegative() {
		return nil, apperr.NewFieldValidation("unit_cost", "must not be negative, got %s", req.UnitCost.String())
	}

	if _, err := s.productService.GetActiveProduct(req.ProductID); err != nil {
		return nil, err
	}

	purchaseDate := time.Now().UTC()
	if req.PurchaseDate != nil {
		purchaseDate = req.PurchaseDate.UTC()
	}

	b := &Batch{
		ProductID:         req.ProductID,
		UnitCost:          req.UnitCost,
		InitialQuantity:   req.Quantity,
		RemainingQuantity: req.Quantity,
		PurchaseDate:      purchaseDate,
		ExpiryDate:        req.ExpiryDate,
		Supplier:          req.Supplier,
		Status:            StatusActive,
	}

	err := s.runner.Run(func(tx *gorm.DB) error {
		// The first real batch must not erase pre-ledger stock: bridge it
		// into an opening batch before the rollup starts deriving quantity
		// from the ledger.
		if err := s.EnsureLegacyBacked(tx, req.ProductID); err != nil {
			return err
		}

		if err := tx.Create(b).Error; err != nil {
			return apperr.NewPersistence("create batch", err)
		}

		b.BatchNumber = generateBatchNumber(b.ID, purchaseDate)
		if err := tx.Model(b).Update("batch_number", b.BatchNumber).Error; err != nil {
			return apperr.NewPersistence("assign batch number", err)
		}

		return s.productService.RefreshRollup(tx, req.ProductID)
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// ListAvailable returns the lots a new sale may consume, in FIFO order.
// The (purchase_date, id) ordering IS the FIFO contract: total, stable and
// tie-broken by insertion order when purchase dates collide.
func (s *Service) ListAvailable(db *gorm.DB, productID uint) ([]Batch, error) {
	if db == nil {
		db = s.runner.DB()
	}

	var batches []Batch
	err := db.
		Where("product_id = ? AND status = ? AND remaining_quantity > 0", productID, StatusActive).
		Order("purchase_date asc, id asc").
		Find(&batches).Error
	if err != nil {
		return nil, apperr.NewPersistence("list available batches", err)
	}
	return batches, nil
}

// ListForProduct returns a product's ledger history in FIFO order, skipping
// consumed lots unless includeEmpty is set
func (s *Service) ListForProduct(productID uint, includeEmpty bool) ([]Batch, error) {
	if _, err := s.productService.GetProduct(productID); err != nil {
		return nil, err
	}

	query := s.runner.DB().Where("product_id = ?", productID)
	if !includeEmpty {
		query = query.Where("remaining_quantity > 0")
	}

	var batches []Batch
	if err := query.Order("purchase_date asc, id asc").Find(&batches).Error; err != nil {
		return nil, apperr.NewPersistence("list batches", err)
	}
	return batches, nil
}

// CancelBatch deactivates a lot so it is never selected again. Lots are
// never deleted.
func (s *Service) CancelBatch(id uint) (*Batch, error) {
	var b Batch
	if err := s.runner.DB().First(&b, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NewNotFound("batch", id)
		}
		return nil, apperr.NewPersistence("get batch", err)
	}

	if b.Status != StatusActive {
		return nil, apperr.NewValidation("batch %s is already %s", b.BatchNumber, b.Status)
	}

	err := s.runner.Run(func(tx *gorm.DB) error {
		if err := tx.Model(&b).Update("status", StatusCancelled).Error; err != nil {
			return apperr.NewPersistence("cancel batch", err)
		}
		return s.productService.RefreshRollup(tx, b.ProductID)
	})
	if err != nil {
		return nil, err
	}
	b.Status = StatusCancelled

	return &b, nil
}

// EnsureLegacyBacked materializes an opening batch for a product that still
// carries pre-ledger stock with no batch history. Idempotent: once any batch
// row exists for the product nothing happens, so the legacy quantity field
// is never consumed directly again.
func (s *Service) EnsureLegacyBacked(db *gorm.DB, productID uint) error {
	if db == nil {
		db = s.runner.DB()
	}

	var count int64
	if err := db.Model(&Batch{}).Where("product_id = ?", productID).Count(&count).Error; err != nil {
		return apperr.NewPersistence("count batches", err)
	}
	if count > 0 {
		return nil
	}

	var p product.Product
	if err := db.First(&p, productID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperr.NewNotFound("product", productID)
		}
		return apperr.NewPersistence("get product", err)
	}
	if p.Quantity <= 0 {
		return nil
	}

	opening := &Batch{
		ProductID:         p.ID,
		UnitCost:          p.CostPrice,
		InitialQuantity:   p.Quantity,
		RemainingQuantity: p.Quantity,
		PurchaseDate:      p.CreatedAt.UTC(),
		Supplier:          "legacy-stock",
		IsSynthetic:       true,
		Status:            StatusActive,
	}
	if err := db.Create(opening).Error; err != nil {
		return apperr.NewPersistence("create opening batch", err)
	}

	opening.BatchNumber = generateBatchNumber(opening.ID, opening.PurchaseDate)
	if err := db.Model(opening).Update("batch_number", opening.BatchNumber).Error; err != nil {
		return apperr.NewPersistence("assign batch number", err)
	}

	return nil
}

// generateBatchNumber formats a unique human-readable lot reference
func generateBatchNumber(id uint, purchaseDate time.Time) string {
	// Format: BATCH-YYYYMMDD-XXXXX
	return fmt.Sprintf("BATCH-%s-%05d", purchaseDate.Format("20060102"), id)
}
