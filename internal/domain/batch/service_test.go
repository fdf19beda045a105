// internal/domain/batch/service_test.go
package batch

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/pos-backend/internal/config"
	"github.com/your-org/pos-backend/internal/domain/product"
	"github.com/your-org/pos-backend/internal/pkg/apperr"
	"github.com/your-org/pos-backend/internal/pkg/txn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) (*Service, *product.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&product.Product{}, &Batch{}))

	cfg := testConfig()
	log := logrus.New()
	log.SetOutput(io.Discard)

	productService := product.NewService(db, cfg)
	runner := txn.NewRunner(db, true, log)
	return NewService(runner, cfg, productService), productService, db
}

func testConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{
			PriceEpsilon: decimal.NewFromFloat(0.01),
			RollupMode:   "sync",
		},
	}
}

func createTestProduct(t *testing.T, ps *product.Service, sku string, price, cost string, qty int) *product.Product {
	t.Helper()
	p, err := ps.CreateProduct(&product.CreateProductRequest{
		SKU:       sku,
		Name:      "Product " + sku,
		Price:     decimal.RequireFromString(price),
		CostPrice: decimal.RequireFromString(cost),
		Quantity:  qty,
	})
	require.NoError(t, err)
	return p
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got),
		"want %s, got %s", want, got.String())
}

func TestCreateBatchValidation(t *testing.T) {
	svc, ps, _ := newTestService(t)
	p := createTestProduct(t, ps, "SKU-001", "5.00", "0", 0)

	_, err := svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID,
		UnitCost:  decimal.RequireFromString("2.00"),
		Quantity:  0,
	})
	var validation *apperr.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "quantity", validation.Field)
	assert.Contains(t, validation.Message, "got 0")

	_, err = svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID,
		UnitCost:  decimal.RequireFromString("-1.00"),
		Quantity:  5,
	})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "unit_cost", validation.Field)

	_, err = svc.CreateBatch(&CreateBatchRequest{
		ProductID: 9999,
		UnitCost:  decimal.RequireFromString("2.00"),
		Quantity:  5,
	})
	var notFound *apperr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCreateBatchAssignsNumberAndRollsUp(t *testing.T) {
	svc, ps, _ := newTestService(t)
	p := createTestProduct(t, ps, "SKU-002", "5.00", "0", 0)

	b1, err := svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID,
		UnitCost:  decimal.RequireFromString("2.00"),
		Quantity:  10,
	})
	require.NoError(t, err)
	assert.Regexp(t, `^BATCH-\d{8}-\d{5}$`, b1.BatchNumber)
	assert.Equal(t, 10, b1.RemainingQuantity)

	_, err = svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID,
		UnitCost:  decimal.RequireFromString("3.00"),
		Quantity:  10,
	})
	require.NoError(t, err)

	refreshed, err := ps.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, refreshed.Quantity)
	// Weighted average: (10*2.00 + 10*3.00) / 20
	assertDecimal(t, "2.50", refreshed.CostPrice)
}

func TestCreateBatchBridgesLegacyStock(t *testing.T) {
	svc, ps, db := newTestService(t)
	p := createTestProduct(t, ps, "SKU-003", "5.00", "1.00", 5)

	_, err := svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID,
		UnitCost:  decimal.RequireFromString("3.00"),
		Quantity:  10,
	})
	require.NoError(t, err)

	// Legacy stock became an opening batch instead of being erased
	var batches []Batch
	require.NoError(t, db.Where("product_id = ?", p.ID).Order("id asc").Find(&batches).Error)
	require.Len(t, batches, 2)
	assert.True(t, batches[0].IsSynthetic)
	assert.Equal(t, "legacy-stock", batches[0].Supplier)
	assert.Equal(t, 5, batches[0].RemainingQuantity)
	assertDecimal(t, "1.00", batches[0].UnitCost)

	refreshed, err := ps.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, refreshed.Quantity)
}

func TestEnsureLegacyBackedIdempotent(t *testing.T) {
	svc, ps, db := newTestService(t)
	p := createTestProduct(t, ps, "SKU-004", "5.00", "1.50", 7)

	require.NoError(t, svc.EnsureLegacyBacked(nil, p.ID))
	require.NoError(t, svc.EnsureLegacyBacked(nil, p.ID))

	var count int64
	require.NoError(t, db.Model(&Batch{}).Where("product_id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var opening Batch
	require.NoError(t, db.Where("product_id = ?", p.ID).First(&opening).Error)
	assert.True(t, opening.IsSynthetic)
	assert.Equal(t, 7, opening.InitialQuantity)
	assertDecimal(t, "1.50", opening.UnitCost)
}

func TestEnsureLegacyBackedSkipsZeroStock(t *testing.T) {
	svc, ps, db := newTestService(t)
	p := createTestProduct(t, ps, "SKU-005", "5.00", "1.00", 0)

	require.NoError(t, svc.EnsureLegacyBacked(nil, p.ID))

	var count int64
	require.NoError(t, db.Model(&Batch{}).Where("product_id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestListForProductFiltersEmptyLots(t *testing.T) {
	svc, ps, db := newTestService(t)
	p := createTestProduct(t, ps, "SKU-006", "5.00", "0", 0)

	b1, err := svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID, UnitCost: decimal.RequireFromString("2.00"), Quantity: 3,
	})
	require.NoError(t, err)
	_, err = svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID, UnitCost: decimal.RequireFromString("2.50"), Quantity: 4,
	})
	require.NoError(t, err)

	// Drain the first lot
	require.NoError(t, db.Model(&Batch{}).Where("id = ?", b1.ID).
		Update("remaining_quantity", 0).Error)

	visible, err := svc.ListForProduct(p.ID, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, 4, visible[0].RemainingQuantity)

	all, err := svc.ListForProduct(p.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCancelBatch(t *testing.T) {
	svc, ps, _ := newTestService(t)
	p := createTestProduct(t, ps, "SKU-007", "5.00", "0", 0)

	b1, err := svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID, UnitCost: decimal.RequireFromString("2.00"), Quantity: 10,
	})
	require.NoError(t, err)
	_, err = svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID, UnitCost: decimal.RequireFromString("4.00"), Quantity: 10,
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelBatch(b1.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Cancelled stock left the rollup
	refreshed, err := ps.GetProduct(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, refreshed.Quantity)
	assertDecimal(t, "4.00", refreshed.CostPrice)

	// A lot cannot be cancelled twice
	_, err = svc.CancelBatch(b1.ID)
	var validation *apperr.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestCreateBatchRollsBackOnNumberFailure(t *testing.T) {
	svc, ps, db := newTestService(t)
	p := createTestProduct(t, ps, "SKU-009", "5.00", "0", 0)

	// Reject the batch-number write after the insert has gone through
	boom := errors.New("write rejected")
	require.NoError(t, db.Callback().Update().Before("gorm:update").
		Register("reject_batch_update", func(tx *gorm.DB) {
			if tx.Statement.Table == "batches" {
				_ = tx.AddError(boom)
			}
		}))
	defer db.Callback().Update().Remove("reject_batch_update")

	_, err := svc.CreateBatch(&CreateBatchRequest{
		ProductID: p.ID,
		UnitCost:  decimal.RequireFromString("2.00"),
		Quantity:  5,
	})
	require.Error(t, err)

	// No half-created lot without a number survives
	var count int64
	require.NoError(t, db.Model(&Batch{}).Where("product_id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestPurchaseDateIsHonored(t *testing.T) {
	svc, ps, _ := newTestService(t)
	p := createTestProduct(t, ps, "SKU-008", "5.00", "0", 0)

	backdated := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	b, err := svc.CreateBatch(&CreateBatchRequest{
		ProductID:    p.ID,
		UnitCost:     decimal.RequireFromString("2.00"),
		Quantity:     5,
		PurchaseDate: &backdated,
	})
	require.NoError(t, err)
	assert.True(t, b.PurchaseDate.Equal(backdated))
	assert.Contains(t, b.BatchNumber, "20240301")
}
