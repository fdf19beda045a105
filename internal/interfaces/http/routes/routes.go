// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/pos-backend/internal/config"
	"github.com/your-org/pos-backend/internal/domain/batch"
	"github.com/your-org/pos-backend/internal/domain/product"
	"github.com/your-org/pos-backend/internal/domain/report"
	"github.com/your-org/pos-backend/internal/domain/sale"
	redisdb "github.com/your-org/pos-backend/internal/infrastructure/database/redis"
	"github.com/your-org/pos-backend/internal/interfaces/http/handlers"
	"github.com/your-org/pos-backend/internal/interfaces/http/middleware"
	"github.com/your-org/pos-backend/internal/pkg/txn"
	"gorm.io/gorm"
)

// SetupRoutes wires all API routes. The rollup queue is process wide and
// owned by the caller.
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client,
	cfg *config.Config, log *logrus.Logger, rollups *product.RollupQueue) {

	productService := product.NewService(db, cfg)
	runner := txn.NewRunner(db, !cfg.Ledger.DisableTransactions, log)
	batchService := batch.NewService(runner, cfg, productService)
	saleService := sale.NewService(runner, cfg, log, productService, batchService, rollups)
	reportService := report.NewService(db, &redisdb.Client{Redis: redisClient}, cfg, log)

	authHandler := handlers.NewAuthHandler(db, cfg)
	productHandler := handlers.NewProductHandler(productService, batchService)
	batchHandler := handlers.NewBatchHandler(batchService)
	saleHandler := handlers.NewSaleHandler(saleService)
	reportHandler := handlers.NewReportHandler(reportService)

	// Public auth endpoints
	auth := rg.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// Everything else requires a valid access token
	protected := rg.Group("")
	protected.Use(middleware.AuthMiddleware(cfg))

	products := protected.Group("/products")
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/:id", productHandler.GetProduct)
		products.GET("/:id/batches", productHandler.GetProductBatches)
	}

	sales := protected.Group("/sales")
	{
		sales.POST("", saleHandler.CreateSale)
		sales.GET("", saleHandler.GetSales)
		sales.GET("/:id", saleHandler.GetSale)
		sales.GET("/:id/profit", saleHandler.GetSaleProfit)
	}

	// Catalog and purchasing management, admin only
	admin := protected.Group("")
	admin.Use(middleware.AdminMiddleware())
	{
		admin.POST("/products", productHandler.CreateProduct)
		admin.PUT("/products/:id", productHandler.UpdateProduct)

		admin.POST("/batches", batchHandler.CreateBatch)
		admin.PUT("/batches/:id/cancel", batchHandler.CancelBatch)

		admin.POST("/users", authHandler.CreateUser)

		reports := admin.Group("/reports")
		{
			reports.GET("/profit", reportHandler.GetProfitReport)
			reports.GET("/dashboard", reportHandler.GetDashboard)
		}
	}
}
