// internal/domain/report/service.go
package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/pos-backend/internal/config"
	"github.com/your-org/pos-backend/internal/domain/batch"
	"github.com/your-org/pos-backend/internal/domain/product"
	"github.com/your-org/pos-backend/internal/domain/sale"
	redisdb "github.com/your-org/pos-backend/internal/infrastructure/database/redis"
	"github.com/your-org/pos-backend/internal/pkg/apperr"
	"gorm.io/gorm"
)

const dashboardCacheKey = "report:dashboard"
const dashboardCacheTTL = 30 * time.Second

// Service builds profit and activity reports over recorded sales
type Service struct {
	db     *gorm.DB
	cache  *redisdb.Client
	config *config.Config
	log    *logrus.Logger
}

// NewService creates a new report service. cache may be nil, reports then
// always recompute.
func NewService(db *gorm.DB, cache *redisdb.Client, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		db:     db,
		cache:  cache,
		config: cfg,
		log:    log,
	}
}

// ProductProfit is the per-product breakdown within a profit report
type ProductProfit struct {
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
	Cost        decimal.Decimal `json:"cost"`
	Profit      decimal.Decimal `json:"profit"`
}

// ProfitReport summarizes realized profit over a date range
type ProfitReport struct {
	From      *time.Time      `json:"from,omitempty"`
	To        *time.Time      `json:"to,omitempty"`
	SaleCount int             `json:"sale_count"`
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	Profit    decimal.Decimal `json:"profit"`
	Margin    decimal.Decimal `json:"margin"`
	// EstimatedLines counts lines whose cost fell back to the product's
	// current average because no allocation provenance was recorded.
	EstimatedLines int             `json:"estimated_lines"`
	Products       []ProductProfit `json:"products"`
}

// Profit computes the profit report for the given range. Costs come from the
// batch allocations recorded at sale time, so later purchases never change a
// past report.
func (s *Service) Profit(from, to *time.Time) (*ProfitReport, error) {
	query := s.db.Model(&sale.Sale{}).Preload("Lines.Allocations")
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}

	var sales []sale.Sale
	if err := query.Order("created_at asc").Find(&sales).Error; err != nil {
		return nil, apperr.NewPersistence("profit report", err)
	}

	report := &ProfitReport{
		From:    from,
		To:      to,
		Revenue: decimal.Zero,
		Cost:    decimal.Zero,
		Profit:  decimal.Zero,
	}

	perProduct := make(map[uint]*ProductProfit)
	var productOrder []uint

	for i := range sales {
		report.SaleCount++
		for j := range sales[i].Lines {
			line := &sales[i].Lines[j]

			cost, estimated := s.lineCost(line)
			if estimated {
				report.EstimatedLines++
			}

			report.Revenue = report.Revenue.Add(line.LineTotal)
			report.Cost = report.Cost.Add(cost)

			pp, ok := perProduct[line.ProductID]
			if !ok {
				pp = &ProductProfit{
					ProductID:   line.ProductID,
					ProductName: line.ProductName,
					Revenue:     decimal.Zero,
					Cost:        decimal.Zero,
				}
				perProduct[line.ProductID] = pp
				productOrder = append(productOrder, line.ProductID)
			}
			pp.Quantity += line.Quantity
			pp.Revenue = pp.Revenue.Add(line.LineTotal)
			pp.Cost = pp.Cost.Add(cost)
		}
	}

	report.Profit = report.Revenue.Sub(report.Cost)
	report.Margin = sale.SaleProfitMargin(report.Profit, report.Revenue)

	for _, id := range productOrder {
		pp := perProduct[id]
		pp.Profit = pp.Revenue.Sub(pp.Cost)
		report.Products = append(report.Products, *pp)
	}

	return report, nil
}

func (s *Service) lineCost(line *sale.SaleLine) (decimal.Decimal, bool) {
	if cost, ok := line.AllocatedCost(); ok {
		return cost, false
	}

	// Pre-ledger line, fall back to the product's current average cost
	var p product.Product
	if err := s.db.Unscoped().First(&p, line.ProductID).Error; err != nil {
		return decimal.Zero, true
	}
	return p.CostPrice.Mul(decimal.NewFromInt(int64(line.Quantity))), true
}

// Dashboard is the cached storefront overview
type Dashboard struct {
	GeneratedAt      time.Time       `json:"generated_at"`
	TodaySaleCount   int64           `json:"today_sale_count"`
	TodayRevenue     decimal.Decimal `json:"today_revenue"`
	TodayProfit      decimal.Decimal `json:"today_profit"`
	ActiveProducts   int64           `json:"active_products"`
	ActiveBatches    int64           `json:"active_batches"`
	LowStockProducts []LowStock      `json:"low_stock_products"`
}

// LowStock is a product at or below its restock threshold
type LowStock struct {
	ProductID uint   `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
}

// GetDashboard returns the dashboard, served from cache when fresh. Cache
// failures degrade to a recompute, never to an error.
func (s *Service) GetDashboard(ctx context.Context) (*Dashboard, error) {
	if s.cache != nil {
		var cached Dashboard
		err := s.cache.GetJSON(ctx, dashboardCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !redisdb.IsCacheMiss(err) {
			s.log.WithError(err).Warn("dashboard cache read failed")
		}
	}

	dashboard, err := s.buildDashboard()
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, dashboardCacheKey, dashboard, dashboardCacheTTL); err != nil {
			s.log.WithError(err).Warn("dashboard cache write failed")
		}
	}

	return dashboard, nil
}

func (s *Service) buildDashboard() (*Dashboard, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	todayReport, err := s.Profit(&dayStart, nil)
	if err != nil {
		return nil, err
	}

	dashboard := &Dashboard{
		GeneratedAt:    now,
		TodaySaleCount: int64(todayReport.SaleCount),
		TodayRevenue:   todayReport.Revenue,
		TodayProfit:    todayReport.Profit,
	}

	if err := s.db.Model(&product.Product{}).Where("is_active = ?", true).Count(&dashboard.ActiveProducts).Error; err != nil {
		return nil, apperr.NewPersistence("dashboard", err)
	}

	if err := s.db.Model(&batch.Batch{}).Where("status = ? AND remaining_quantity > 0", batch.StatusActive).Count(&dashboard.ActiveBatches).Error; err != nil {
		return nil, apperr.NewPersistence("dashboard", err)
	}

	var lowStock []product.Product
	if err := s.db.Where("is_active = ? AND quantity <= low_stock_threshold", true).
		Order("quantity asc").Limit(20).Find(&lowStock).Error; err != nil {
		return nil, apperr.NewPersistence("dashboard", err)
	}
	for _, p := range lowStock {
		dashboard.LowStockProducts = append(dashboard.LowStockProducts, LowStock{
			ProductID: p.ID,
			SKU:       p.SKU,
			Name:      p.Name,
			Quantity:  p.Quantity,
			Threshold: p.LowStockThreshold,
		})
	}

	return dashboard, nil
}
