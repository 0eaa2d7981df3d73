// Package store opens the durable local database and defines its records.
// Orders are written here before any remote call, so this is the record of truth.
package store

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"order-engine/internal/config"
	"order-engine/internal/model"
)

// OrderRecord is the persisted form of model.Order.
type OrderRecord struct {
	ID             string `gorm:"primaryKey;size:36"`
	Number         string `gorm:"size:32;uniqueIndex;not null"`
	TenantID       string `gorm:"size:64;not null;index:idx_orders_tenant_status"`
	ConversationID string `gorm:"size:128;index"`
	RemoteID       string `gorm:"size:64;index"`
	RemoteNumber   string `gorm:"size:64"`

	Status       string `gorm:"size:16;not null;index:idx_orders_tenant_status"`
	StatusRank   int    `gorm:"not null"`
	StatusReason string `gorm:"size:255"`

	// Resubmittable marks local-only orders whose remote failure was transient.
	Resubmittable  bool `gorm:"not null;default:false;index"`
	SubmitAttempts int  `gorm:"not null;default:0"`

	Cart      model.Cart     `gorm:"serializer:json;type:text"`
	Customer  model.Customer `gorm:"serializer:json;type:text"`
	Delivery  model.Delivery `gorm:"serializer:json;type:text"`
	Payment   model.Payment  `gorm:"serializer:json;type:text"`
	PromoCode string         `gorm:"size:64"`
	Currency  string         `gorm:"size:8"`

	Subtotal    decimal.Decimal `gorm:"type:varchar(32);not null"`
	Tax         decimal.Decimal `gorm:"type:varchar(32);not null"`
	DeliveryFee decimal.Decimal `gorm:"type:varchar(32);not null"`
	Discount    decimal.Decimal `gorm:"type:varchar(32);not null"`
	Total       decimal.Decimal `gorm:"type:varchar(32);not null"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
}

// TableName pins the table name.
func (OrderRecord) TableName() string { return "orders" }

// DiscrepancyRecord is a difference found when reconciling a local order
// against its remote counterpart. Rows are append-only.
type DiscrepancyRecord struct {
	ID          uint            `gorm:"primaryKey"`
	OrderID     string          `gorm:"size:36;not null;index"`
	TenantID    string          `gorm:"size:64;not null"`
	Kind        string          `gorm:"size:16;not null"` // line, total, status
	Detail      string          `gorm:"size:512;not null"`
	LocalTotal  decimal.Decimal `gorm:"type:varchar(32)"`
	RemoteTotal decimal.Decimal `gorm:"type:varchar(32)"`
	CreatedAt   time.Time
}

// TableName pins the table name.
func (DiscrepancyRecord) TableName() string { return "order_discrepancies" }

// Open connects to SQLite, applies pool settings and migrates the schema.
// Path ":memory:" opens a private in-memory database on a single connection.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := cfg.Path
	memory := cfg.Path == ":memory:"
	if !memory {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(slogWriter{logger}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.AutoMigrate(&OrderRecord{}, &DiscrepancyRecord{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return db, nil
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogWriter routes gorm's logger through slog.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.logger.Warn("database", "detail", fmt.Sprintf(format, args...))
}
