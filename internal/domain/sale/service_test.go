// internal/domain/sale/service_test.go
package sale

import (
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/pos-backend/internal/config"
	"github.com/your-org/pos-backend/internal/domain/batch"
	"github.com/your-org/pos-backend/internal/domain/product"
	"github.com/your-org/pos-backend/internal/pkg/apperr"
	"github.com/your-org/pos-backend/internal/pkg/txn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db       *gorm.DB
	sales    *Service
	products *product.Service
	batches  *batch.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&product.Product{}, &batch.Batch{},
		&Sale{}, &SaleLine{}, &BatchAllocation{},
	))

	cfg := &config.Config{
		Ledger: config.LedgerConfig{
			PriceEpsilon: decimal.NewFromFloat(0.01),
			RollupMode:   "sync",
		},
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	productService := product.NewService(db, cfg)
	runner := txn.NewRunner(db, true, log)
	batchService := batch.NewService(runner, cfg, productService)
	saleService := NewService(runner, cfg, log, productService, batchService, nil)

	return &testEnv{
		db:       db,
		sales:    saleService,
		products: productService,
		batches:  batchService,
	}
}

func (e *testEnv) createProduct(t *testing.T, sku, price, cost string, qty int) *product.Product {
	t.Helper()
	p, err := e.products.CreateProduct(&product.CreateProductRequest{
		SKU:       sku,
		Name:      "Product " + sku,
		Price:     decimal.RequireFromString(price),
		CostPrice: decimal.RequireFromString(cost),
		Quantity:  qty,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) createBatch(t *testing.T, productID uint, cost string, qty int, when time.Time) *batch.Batch {
	t.Helper()
	b, err := e.batches.CreateBatch(&batch.CreateBatchRequest{
		ProductID:    productID,
		UnitCost:     decimal.RequireFromString(cost),
		Quantity:     qty,
		PurchaseDate: &when,
	})
	require.NoError(t, err)
	return b
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got),
		"want %s, got %s", want, got.String())
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestCreateSaleConsumesOldestBatchFirst(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "SALE-001", "5.00", "0", 0)
	b1 := env.createBatch(t, p.ID, "2.00", 10, day(1))
	b2 := env.createBatch(t, p.ID, "3.00", 10, day(2))

	record, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.RequireFromString("75.00"),
		Lines: []SaleLineRequest{{
			ProductID: p.ID,
			Quantity:  15,
			UnitPrice: decimal.RequireFromString("5.00"),
			LineTotal: decimal.RequireFromString("75.00"),
		}},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^RCP-\d{8}-[0-9A-F]{8}$`, record.ReceiptNumber)

	require.Len(t, record.Lines, 1)
	allocations := record.Lines[0].Allocations
	require.Len(t, allocations, 2)
	assert.Equal(t, b1.ID, allocations[0].BatchID)
	assert.Equal(t, 10, allocations[0].Quantity)
	assert.Equal(t, b2.ID, allocations[1].BatchID)
	assert.Equal(t, 5, allocations[1].Quantity)

	// Cost of goods: 10*2.00 + 5*3.00
	cost, ok := record.Lines[0].AllocatedCost()
	require.True(t, ok)
	assertDecimal(t, "35.00", cost)

	var first, second batch.Batch
	require.NoError(t, env.db.First(&first, b1.ID).Error)
	require.NoError(t, env.db.First(&second, b2.ID).Error)
	assert.Equal(t, 0, first.RemainingQuantity)
	assert.Equal(t, batch.StatusDepleted, first.Status)
	assert.Equal(t, 5, second.RemainingQuantity)

	// Sync rollup already landed
	refreshed, err := env.products.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, refreshed.Quantity)
	assertDecimal(t, "3.00", refreshed.CostPrice)
}

func TestCreateSaleAllocationQuantitiesMatchLines(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.createProduct(t, "SALE-002", "4.00", "0", 0)
	p2 := env.createProduct(t, "SALE-003", "6.00", "0", 0)
	env.createBatch(t, p1.ID, "1.00", 5, day(1))
	env.createBatch(t, p1.ID, "1.50", 5, day(2))
	env.createBatch(t, p2.ID, "2.00", 8, day(1))

	record, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "card",
		TotalAmount:   decimal.RequireFromString("46.00"),
		Lines: []SaleLineRequest{
			{
				ProductID: p1.ID, Quantity: 7,
				UnitPrice: decimal.RequireFromString("4.00"),
				LineTotal: decimal.RequireFromString("28.00"),
			},
			{
				ProductID: p2.ID, Quantity: 3,
				UnitPrice: decimal.RequireFromString("6.00"),
				LineTotal: decimal.RequireFromString("18.00"),
			},
		},
	})
	require.NoError(t, err)

	for _, line := range record.Lines {
		total := 0
		for _, a := range line.Allocations {
			total += a.Quantity
		}
		assert.Equal(t, line.Quantity, total, "allocations must cover the line quantity")
	}
}

func TestCreateSaleAllowsRepeatedProductLines(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "SALE-011", "5.00", "0", 0)
	b1 := env.createBatch(t, p.ID, "2.00", 10, day(1))
	b2 := env.createBatch(t, p.ID, "3.00", 10, day(2))

	// Two lines for the same product must split the ledger between them
	// instead of both claiming the oldest lot
	record, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.RequireFromString("60.00"),
		Lines: []SaleLineRequest{
			{
				ProductID: p.ID,
				Quantity:  6,
				UnitPrice: decimal.RequireFromString("5.00"),
				LineTotal: decimal.RequireFromString("30.00"),
			},
			{
				ProductID: p.ID,
				Quantity:  6,
				UnitPrice: decimal.RequireFromString("5.00"),
				LineTotal: decimal.RequireFromString("30.00"),
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, record.Lines, 2)

	firstAllocs := record.Lines[0].Allocations
	require.Len(t, firstAllocs, 1)
	assert.Equal(t, b1.ID, firstAllocs[0].BatchID)
	assert.Equal(t, 6, firstAllocs[0].Quantity)

	secondAllocs := record.Lines[1].Allocations
	require.Len(t, secondAllocs, 2)
	assert.Equal(t, b1.ID, secondAllocs[0].BatchID)
	assert.Equal(t, 4, secondAllocs[0].Quantity)
	assert.Equal(t, b2.ID, secondAllocs[1].BatchID)
	assert.Equal(t, 2, secondAllocs[1].Quantity)

	var old, fresh batch.Batch
	require.NoError(t, env.db.First(&old, b1.ID).Error)
	require.NoError(t, env.db.First(&fresh, b2.ID).Error)
	assert.Equal(t, 0, old.RemainingQuantity)
	assert.Equal(t, batch.StatusDepleted, old.Status)
	assert.Equal(t, 8, fresh.RemainingQuantity)

	// 6*2.00 + 4*2.00 + 2*3.00
	refreshed, err := env.products.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, refreshed.Quantity)
	assertDecimal(t, "3.00", refreshed.CostPrice)
}

func TestCreateSaleRepeatedProductInsufficientAcrossLines(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "SALE-012", "5.00", "0", 0)
	b := env.createBatch(t, p.ID, "2.00", 8, day(1))

	_, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.RequireFromString("50.00"),
		Lines: []SaleLineRequest{
			{
				ProductID: p.ID,
				Quantity:  5,
				UnitPrice: decimal.RequireFromString("5.00"),
				LineTotal: decimal.RequireFromString("25.00"),
			},
			{
				ProductID: p.ID,
				Quantity:  5,
				UnitPrice: decimal.RequireFromString("5.00"),
				LineTotal: decimal.RequireFromString("25.00"),
			},
		},
	})
	var stock *apperr.InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, 3, stock.Available)
	assert.Equal(t, 5, stock.Requested)

	// Nothing committed: the first line's plan never touched the lot
	var untouched batch.Batch
	require.NoError(t, env.db.First(&untouched, b.ID).Error)
	assert.Equal(t, 8, untouched.RemainingQuantity)

	var count int64
	require.NoError(t, env.db.Model(&Sale{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCreateSaleBridgesLegacyStock(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "SALE-004", "5.00", "1.00", 5)

	record, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "bob",
		PaymentMethod: "cash",
		TotalAmount:   decimal.RequireFromString("15.00"),
		Lines: []SaleLineRequest{{
			ProductID: p.ID,
			Quantity:  3,
			UnitPrice: decimal.RequireFromString("5.00"),
			LineTotal: decimal.RequireFromString("15.00"),
		}},
	})
	require.NoError(t, err)

	require.Len(t, record.Lines, 1)
	require.Len(t, record.Lines[0].Allocations, 1)
	assertDecimal(t, "1.00", record.Lines[0].Allocations[0].UnitCost)

	var opening batch.Batch
	require.NoError(t, env.db.Where("product_id = ?", p.ID).First(&opening).Error)
	assert.True(t, opening.IsSynthetic)
	assert.Equal(t, 2, opening.RemainingQuantity)

	refreshed, err := env.products.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.Quantity)
}

func TestCreateSaleRejectsPriceDrift(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "SALE-005", "5.00", "0", 0)
	b := env.createBatch(t, p.ID, "2.00", 10, day(1))

	_, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.RequireFromString("4.50"),
		Lines: []SaleLineRequest{{
			ProductID: p.ID,
			Quantity:  1,
			UnitPrice: decimal.RequireFromString("4.50"),
			LineTotal: decimal.RequireFromString("4.50"),
		}},
	})
	var price *apperr.PriceMismatchError
	require.ErrorAs(t, err, &price)
	assertDecimal(t, "4.50", price.Submitted)
	assertDecimal(t, "5.00", price.Current)

	// Nothing was persisted
	var saleCount int64
	require.NoError(t, env.db.Model(&Sale{}).Count(&saleCount).Error)
	assert.Equal(t, int64(0), saleCount)

	var unchanged batch.Batch
	require.NoError(t, env.db.First(&unchanged, b.ID).Error)
	assert.Equal(t, 10, unchanged.RemainingQuantity)
}

func TestCreateSaleToleratesEpsilonPriceDifference(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "SALE-006", "5.00", "0", 0)
	env.createBatch(t, p.ID, "2.00", 10, day(1))

	_, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.RequireFromString("4.99"),
		Lines: []SaleLineRequest{{
			ProductID: p.ID,
			Quantity:  1,
			UnitPrice: decimal.RequireFromString("4.99"),
			LineTotal: decimal.RequireFromString("4.99"),
		}},
	})
	require.NoError(t, err)
}

func TestCreateSaleRejectsTotalMismatch(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "SALE-007", "5.00", "0", 0)
	env.createBatch(t, p.ID, "2.00", 10, day(1))

	_, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.RequireFromString("99.00"),
		Lines: []SaleLineRequest{{
			ProductID: p.ID,
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("5.00"),
			LineTotal: decimal.RequireFromString("10.00"),
		}},
	})
	var total *apperr.TotalMismatchError
	require.ErrorAs(t, err, &total)
	assertDecimal(t, "99.00", total.Declared)
	assertDecimal(t, "10.00", total.Computed)
}

func TestCreateSaleAbortsWholeSaleOnInsufficientStock(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.createProduct(t, "SALE-008", "5.00", "0", 0)
	p2 := env.createProduct(t, "SALE-009", "5.00", "0", 0)
	b1 := env.createBatch(t, p1.ID, "2.00", 10, day(1))
	env.createBatch(t, p2.ID, "2.00", 1, day(1))

	_, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.RequireFromString("35.00"),
		Lines: []SaleLineRequest{
			{
				ProductID: p1.ID, Quantity: 2,
				UnitPrice: decimal.RequireFromString("5.00"),
				LineTotal: decimal.RequireFromString("10.00"),
			},
			{
				ProductID: p2.ID, Quantity: 5,
				UnitPrice: decimal.RequireFromString("5.00"),
				LineTotal: decimal.RequireFromString("25.00"),
			},
		},
	})
	var stock *apperr.InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, p2.ID, stock.ProductID)

	// The first line's batch was not touched
	var unchanged batch.Batch
	require.NoError(t, env.db.First(&unchanged, b1.ID).Error)
	assert.Equal(t, 10, unchanged.RemainingQuantity)

	var saleCount int64
	require.NoError(t, env.db.Model(&Sale{}).Count(&saleCount).Error)
	assert.Equal(t, int64(0), saleCount)
}

func TestCreateSaleRejectsEmptyAndInvalidLines(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "SALE-010", "5.00", "0", 0)
	env.createBatch(t, p.ID, "2.00", 10, day(1))

	_, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.Zero,
		Lines:         nil,
	})
	var validation *apperr.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.Zero,
		Lines: []SaleLineRequest{{
			ProductID: p.ID,
			Quantity:  -1,
			UnitPrice: decimal.RequireFromString("5.00"),
			LineTotal: decimal.RequireFromString("-5.00"),
		}},
	})
	require.ErrorAs(t, err, &validation)
}

func TestGetSaleAndListing(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProduct(t, "SALE-011", "5.00", "0", 0)
	env.createBatch(t, p.ID, "2.00", 10, day(1))

	created, err := env.sales.CreateSale(&CreateSaleRequest{
		Cashier:       "alice",
		PaymentMethod: "cash",
		TotalAmount:   decimal.RequireFromString("10.00"),
		Lines: []SaleLineRequest{{
			ProductID: p.ID,
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("5.00"),
			LineTotal: decimal.RequireFromString("10.00"),
		}},
	})
	require.NoError(t, err)

	fetched, err := env.sales.GetSale(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ReceiptNumber, fetched.ReceiptNumber)
	require.Len(t, fetched.Lines, 1)
	assert.NotEmpty(t, fetched.Lines[0].Allocations)

	listed, err := env.sales.GetSales(&SaleListRequest{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), listed.Pagination.Total)
	require.Len(t, listed.Sales, 1)

	_, err = env.sales.GetSale(9999)
	var notFound *apperr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}
