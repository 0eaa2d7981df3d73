package store

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"order-engine/internal/config"
	"order-engine/internal/model"
)

func TestOpenMigratesAndRoundTrips(t *testing.T) {
	for _, path := range []string{":memory:", filepath.Join(t.TempDir(), "orders.db")} {
		t.Run(path, func(t *testing.T) {
			db, err := Open(config.DatabaseConfig{Path: path, MaxOpenConns: 4, MaxIdleConns: 2}, nil)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer Close(db)

			rec := OrderRecord{
				ID:       "o-1",
				Number:   "L-00000001",
				TenantID: "acme",
				Status:   string(model.StatusPending),
				Cart: model.Cart{ID: "c-1", Items: []model.CartItem{
					{ProductID: "prod001", Quantity: 2, LineTotal: decimal.RequireFromString("35.98")},
				}},
				Subtotal: decimal.RequireFromString("35.98"),
				Total:    decimal.RequireFromString("35.98"),
			}
			if err := db.Create(&rec).Error; err != nil {
				t.Fatalf("Create: %v", err)
			}

			var got OrderRecord
			if err := db.First(&got, "id = ?", "o-1").Error; err != nil {
				t.Fatalf("First: %v", err)
			}
			if !got.Total.Equal(decimal.RequireFromString("35.98")) {
				t.Errorf("Total = %s, want 35.98", got.Total)
			}
			if len(got.Cart.Items) != 1 || got.Cart.Items[0].ProductID != "prod001" {
				t.Errorf("Cart = %+v, want one prod001 line", got.Cart)
			}
			if !got.Cart.Items[0].LineTotal.Equal(decimal.RequireFromString("35.98")) {
				t.Errorf("line total = %s, want 35.98", got.Cart.Items[0].LineTotal)
			}

			dup := rec
			if err := db.Create(&dup).Error; err == nil {
				t.Error("duplicate order id accepted")
			}
		})
	}
}
