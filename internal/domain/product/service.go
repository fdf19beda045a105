// internal/domain/product/service.go
package product

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/your-org/pos-backend/internal/config"
	"github.com/your-org/pos-backend/internal/pkg/apperr"
	"gorm.io/gorm"
)

// Service handles catalog business logic and the product rollup
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new product service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// CreateProductRequest represents product creation data
type CreateProductRequest struct {
	SKU               string          `json:"sku" binding:"required"`
	Name              string          `json:"name" binding:"required"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price" binding:"required"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	Quantity          int             `json:"quantity"`
	LowStockThreshold int             `json:"low_stock_threshold"`
}

// UpdateProductRequest represents product update data
type UpdateProductRequest struct {
	Name              *string          `json:"name,omitempty"`
	Description       *string          `json:"description,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty"`
	IsActive          *bool            `json:"is_active,omitempty"`
}

// CreateProduct creates a new catalog entry. Quantity and CostPrice given
// here become the legacy stock the ledger bridge opens its synthetic batch
// from.
func (s *Service) CreateProduct(req *CreateProductRequest) (*Product, error) {
	if req.Price.IsNegative() {
		return nil, apperr.NewFieldValidation("price", "must not be negative")
	}
	if req.CostPrice.IsNegative() {
		return nil, apperr.NewFieldValidation("cost_price", "must not be negative")
	}
	if req.Quantity < 0 {
		return nil, apperr.NewFieldValidation("quantity", "must not be negative")
	}

	var existing Product
	if err := s.db.Where("sku = ?", req.SKU).First(&existing).Error; err == nil {
		return nil, apperr.NewFieldValidation("sku", "product with SKU '%s' already exists", req.SKU)
	}

	p := &Product{
		SKU:               req.SKU,
		Name:              req.Name,
		Description:       req.Description,
		Price:             req.Price,
		CostPrice:         req.CostPrice,
		Quantity:          req.Quantity,
		LowStockThreshold: req.LowStockThreshold,
		IsActive:          true,
	}
	if p.LowStockThreshold <= 0 {
		p.LowStockThreshold = 5
	}

	if err := s.db.Create(p).Error; err != nil {
		return nil, apperr.NewPersistence("create product", err)
	}

	return p, nil
}

// GetProduct retrieves a product by ID
func (s *Service) GetProduct(id uint) (*Product, error) {
	var p Product
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFound("product", id)
		}
		return nil, apperr.NewPersistence("get product", err)
	}
	return &p, nil
}

// GetActiveProduct retrieves a product that is available for selling
func (s *Service) GetActiveProduct(id uint) (*Product, error) {
	p, err := s.GetProduct(id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperr.NewNotFound("product", id)
	}
	return p, nil
}

// GetProducts lists catalog entries, active only unless includeInactive is set
func (s *Service) GetProducts(includeInactive bool) ([]Product, error) {
	var products []Product
	query := s.db.Order("name asc")
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&products).Error; err != nil {
		return nil, apperr.NewPersistence("list products", err)
	}
	return products, nil
}

// UpdateProduct applies a partial update to a catalog entry
func (s *Service) UpdateProduct(id uint, req *UpdateProductRequest) (*Product, error) {
	p, err := s.GetProduct(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, apperr.NewFieldValidation("price", "must not be negative")
		}
		updates["price"] = *req.Price
	}
	if req.LowStockThreshold != nil {
		updates["low_stock_threshold"] = *req.LowStockThreshold
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		return p, nil
	}

	if err := s.db.Model(p).Updates(updates).Error; err != nil {
		return nil, apperr.NewPersistence("update product", err)
	}

	return p, nil
}

// RefreshRollup recomputes the derived product fields from the batch ledger:
// on-hand quantity is the sum of remaining units over active batches and
// cost price is the remaining-weighted average unit cost. Idempotent and
// safe to re-run.
func (s *Service) RefreshRollup(db *gorm.DB, productID uint) error {
	if db == nil {
		db = s.db
	}

	// A product with no ledger history keeps its legacy quantity until the
	// bridge opens the first batch.
	var batchCount int64
	if err := db.Table("batches").Where("product_id = ?", productID).Count(&batchCount).Error; err != nil {
		return apperr.NewPersistence("count batches for rollup", err)
	}
	if batchCount == 0 {
		return nil
	}

	var rows []struct {
		UnitCost          decimal.Decimal
		RemainingQuantity int
	}
	if err := db.Table("batches").
		Select("unit_cost, remaining_quantity").
		Where("product_id = ? AND status = ? AND remaining_quantity > 0", productID, "active").
		Scan(&rows).Error; err != nil {
		return apperr.NewPersistence("read batches for rollup", err)
	}

	onHand := 0
	totalCost := decimal.Zero
	for _, row := range rows {
		onHand += row.RemainingQuantity
		totalCost = totalCost.Add(row.UnitCost.Mul(decimal.NewFromInt(int64(row.RemainingQuantity))))
	}

	avgCost := decimal.Zero
	if onHand > 0 {
		avgCost = totalCost.Div(decimal.NewFromInt(int64(onHand)))
	}

	if err := db.Model(&Product{}).Where("id = ?", productID).Updates(map[string]interface{}{
		"quantity":   onHand,
		"cost_price": avgCost,
	}).Error; err != nil {
		return apperr.NewPersistence("update product rollup", err)
	}

	return nil
}
