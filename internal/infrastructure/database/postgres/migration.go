// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/your-org/pos-backend/internal/domain/batch"
	"github.com/your-org/pos-backend/internal/domain/product"
	"github.com/your-org/pos-backend/internal/domain/sale"
	"github.com/your-org/pos-backend/internal/domain/user"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Models in dependency order
	models := []interface{}{
		&user.User{},

		&product.Product{},
		&batch.Batch{},

		&sale.Sale{},
		&sale.SaleLine{},
		&sale.BatchAllocation{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// Product indexes
		"CREATE INDEX IF NOT EXISTS idx_products_sku_active ON products(sku, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at DESC)",

		// Batch indexes, the FIFO walk reads (product_id, purchase_date, id)
		"CREATE INDEX IF NOT EXISTS idx_batches_fifo ON batches(product_id, purchase_date, id)",
		"CREATE INDEX IF NOT EXISTS idx_batches_product_remaining ON batches(product_id, remaining_quantity)",
		"CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status)",
		"CREATE INDEX IF NOT EXISTS idx_batches_expiry ON batches(expiry_date)",

		// Sale indexes
		"CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_sales_receipt_number ON sales(receipt_number)",
		"CREATE INDEX IF NOT EXISTS idx_sale_lines_sale ON sale_lines(sale_id)",
		"CREATE INDEX IF NOT EXISTS idx_sale_lines_product ON sale_lines(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_batch_allocations_line ON batch_allocations(sale_line_id)",
		"CREATE INDEX IF NOT EXISTS idx_batch_allocations_batch ON batch_allocations(batch_id)",

		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_username_active ON users(username, is_active)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}

// SeedInitialData inserts initial data into the database
func (m *Migration) SeedInitialData() error {
	log.Println("🌱 Seeding initial data...")

	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := m.seedCashierUser(); err != nil {
		return fmt.Errorf("failed to seed cashier user: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

func (m *Migration) seedAdminUser() error {
	log.Println("👤 Seeding admin user...")

	var existing user.User
	result := m.db.Where("username = ?", "admin").First(&existing)
	if result.Error != nil {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte("Admin1234"), 10)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		adminUser := user.User{
			Username: "admin",
			Password: string(hashedPassword),
			FullName: "Store Admin",
			Role:     user.RoleAdmin,
			IsActive: true,
		}

		if err := m.db.Create(&adminUser).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		log.Println("✅ Created admin user: admin (password: Admin1234)")
	} else {
		log.Printf("⏭️ Admin user already exists with ID: %d", existing.ID)
	}

	return nil
}

func (m *Migration) seedCashierUser() error {
	log.Println("👤 Seeding cashier user...")

	var existing user.User
	result := m.db.Where("username = ?", "cashier1").First(&existing)
	if result.Error != nil {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte("Cashier1234"), 10)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		cashierUser := user.User{
			Username: "cashier1",
			Password: string(hashedPassword),
			FullName: "Front Desk",
			Role:     user.RoleCashier,
			IsActive: true,
		}

		if err := m.db.Create(&cashierUser).Error; err != nil {
			return err
		}

		log.Println("✅ Created cashier user: cashier1 (password: Cashier1234)")
	} else {
		log.Println("⏭️ Cashier user already exists")
	}

	return nil
}

// DropAllTables drops all tables (use with extreme caution)
func (m *Migration) DropAllTables() error {
	log.Println("⚠️ WARNING: Dropping all database tables...")

	// Reverse dependency order
	tables := []string{
		"batch_allocations",
		"sale_lines",
		"sales",
		"batches",
		"products",
		"users",
	}

	for _, table := range tables {
		if err := m.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			log.Printf("⚠️ Failed to drop table %s: %v", table, err)
		} else {
			log.Printf("🗑️ Dropped table: %s", table)
		}
	}

	log.Println("✅ All tables dropped successfully")
	return nil
}

// GetTableInfo returns information about database tables
func (m *Migration) GetTableInfo() error {
	var tables []string

	if err := m.db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename").Scan(&tables).Error; err != nil {
		return err
	}

	log.Println("📊 Database Tables Information:")
	log.Println("================================")

	totalRecords := int64(0)
	for _, table := range tables {
		var count int64
		m.db.Table(table).Count(&count)
		totalRecords += count

		status := "✅"
		if count == 0 {
			status = "📭"
		}

		log.Printf("%s %-25s | %d records", status, table, count)
	}

	log.Println("================================")
	log.Printf("📈 Total records across all tables: %d", totalRecords)
	log.Printf("🗂️ Total tables: %d", len(tables))

	return nil
}
