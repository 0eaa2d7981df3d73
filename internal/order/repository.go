package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"order-engine/internal/model"
	"order-engine/internal/store"
)

// Discrepancy is a recorded difference between a local order and its remote copy.
type Discrepancy struct {
	OrderID     string          `json:"order_id"`
	TenantID    string          `json:"tenant_id"`
	Kind        string          `json:"kind"`
	Detail      string          `json:"detail"`
	LocalTotal  decimal.Decimal `json:"local_total"`
	RemoteTotal decimal.Decimal `json:"remote_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Discrepancy kinds.
const (
	DiscrepancyLines  = "line"
	DiscrepancyTotal  = "total"
	DiscrepancyStatus = "status"
)

// Repository persists orders through gorm.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository wraps an open database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create inserts a new order. The order must carry its id and number.
func (r *Repository) Create(ctx context.Context, o *model.Order) error {
	rec := toRecord(o)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("creating order %s: %w", o.ID, err)
	}
	o.CreatedAt = rec.CreatedAt
	return nil
}

// Get loads an order of a tenant by local id or local number.
func (r *Repository) Get(ctx context.Context, tenantID, ref string) (*model.Order, error) {
	var rec store.OrderRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND (id = ? OR number = ?)", tenantID, ref, ref).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.NewNotFoundError("order " + ref)
	}
	if err != nil {
		return nil, fmt.Errorf("loading order %s: %w", ref, err)
	}
	return fromRecord(&rec), nil
}

// UpdateRemote records the remote identifiers of an order and advances its
// status. Identifiers already set are never overwritten.
func (r *Repository) UpdateRemote(ctx context.Context, id, remoteID, remoteNumber string, status model.OrderStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&store.OrderRecord{}).
			Where("id = ? AND remote_id = ''", id).
			Updates(map[string]any{
				"remote_id":     remoteID,
				"remote_number": remoteNumber,
				"resubmittable": false,
			})
		if res.Error != nil {
			return fmt.Errorf("recording remote id for %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			if err := r.exists(tx, id); err != nil {
				return err
			}
		}
		_, err := r.advance(tx, id, status, "", nil)
		return err
	})
}

// AdvanceStatus moves an order forward. It reports false without error when
// the order is already at or past next, or terminal.
func (r *Repository) AdvanceStatus(ctx context.Context, id string, next model.OrderStatus, reason string) (bool, error) {
	return r.advance(r.db.WithContext(ctx), id, next, reason, nil)
}

// MarkLocalOnly moves a pending order to local-only. Resubmittable orders are
// picked up again by the Resubmitter.
func (r *Repository) MarkLocalOnly(ctx context.Context, id, reason string, resubmittable bool) (bool, error) {
	return r.advance(r.db.WithContext(ctx), id, model.StatusLocalOnly, reason, map[string]any{
		"resubmittable": resubmittable,
	})
}

// advance applies a monotonic status update. The WHERE clause is the guard so
// concurrent writers cannot move an order backwards.
func (r *Repository) advance(tx *gorm.DB, id string, next model.OrderStatus, reason string, extra map[string]any) (bool, error) {
	if !next.IsValid() {
		return false, model.NewValidationError("status", string(next))
	}

	updates := map[string]any{
		"status":        string(next),
		"status_rank":   next.Rank(),
		"status_reason": reason,
	}
	if next.Rank() >= model.StatusConfirmed.Rank() && next != model.StatusCancelled {
		updates["confirmed_at"] = gorm.Expr("COALESCE(confirmed_at, ?)", r.now())
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.Model(&store.OrderRecord{}).
		Where("id = ? AND status_rank < ? AND status NOT IN ?", id, next.Rank(),
			[]string{string(model.StatusDelivered), string(model.StatusCancelled)}).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("advancing order %s to %s: %w", id, next, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, r.exists(tx, id)
	}
	return true, nil
}

func (r *Repository) exists(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&store.OrderRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("checking order %s: %w", id, err)
	}
	if n == 0 {
		return model.NewNotFoundError("order " + id)
	}
	return nil
}

// ListLocalOnly returns resubmittable local-only orders, oldest first, that
// have been tried fewer than maxAttempts times.
func (r *Repository) ListLocalOnly(ctx context.Context, limit, maxAttempts int) ([]*model.Order, error) {
	var recs []store.OrderRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND resubmittable = ? AND submit_attempts < ?", string(model.StatusLocalOnly), true, maxAttempts).
		Order("created_at").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("listing local-only orders: %w", err)
	}
	out := make([]*model.Order, len(recs))
	for i := range recs {
		out[i] = fromRecord(&recs[i])
	}
	return out, nil
}

// RecordAttempt counts a resubmission attempt on a local-only order.
func (r *Repository) RecordAttempt(ctx context.Context, id, reason string, resubmittable bool) error {
	err := r.db.WithContext(ctx).Model(&store.OrderRecord{}).
		Where("id = ? AND status = ?", id, string(model.StatusLocalOnly)).
		Updates(map[string]any{
			"submit_attempts": gorm.Expr("submit_attempts + 1"),
			"status_reason":   reason,
			"resubmittable":   resubmittable,
		}).Error
	if err != nil {
		return fmt.Errorf("recording attempt for %s: %w", id, err)
	}
	return nil
}

// RecordDiscrepancy appends a discrepancy row.
func (r *Repository) RecordDiscrepancy(ctx context.Context, d Discrepancy) error {
	rec := store.DiscrepancyRecord{
		OrderID:     d.OrderID,
		TenantID:    d.TenantID,
		Kind:        d.Kind,
		Detail:      d.Detail,
		LocalTotal:  d.LocalTotal,
		RemoteTotal: d.RemoteTotal,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("recording discrepancy for %s: %w", d.OrderID, err)
	}
	return nil
}

// Discrepancies returns the discrepancies of an order in insertion order.
func (r *Repository) Discrepancies(ctx context.Context, orderID string) ([]Discrepancy, error) {
	var recs []store.DiscrepancyRecord
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("listing discrepancies for %s: %w", orderID, err)
	}
	out := make([]Discrepancy, len(recs))
	for i, rec := range recs {
		out[i] = Discrepancy{
			OrderID:     rec.OrderID,
			TenantID:    rec.TenantID,
			Kind:        rec.Kind,
			Detail:      rec.Detail,
			LocalTotal:  rec.LocalTotal,
			RemoteTotal: rec.RemoteTotal,
			CreatedAt:   rec.CreatedAt,
		}
	}
	return out, nil
}

func toRecord(o *model.Order) store.OrderRecord {
	return store.OrderRecord{
		ID:             o.ID,
		Number:         o.Number,
		TenantID:       o.TenantID,
		ConversationID: o.ConversationID,
		RemoteID:       o.RemoteID,
		RemoteNumber:   o.RemoteNumber,
		Status:         string(o.Status),
		StatusRank:     o.Status.Rank(),
		StatusReason:   o.StatusReason,
		Cart:           o.Cart,
		Customer:       o.Customer,
		Delivery:       o.Delivery,
		Payment:        o.Payment,
		PromoCode:      o.PromoCode,
		Currency:       o.Currency,
		Subtotal:       o.Totals.Subtotal,
		Tax:            o.Totals.Tax,
		DeliveryFee:    o.Totals.DeliveryFee,
		Discount:       o.Totals.Discount,
		Total:          o.Totals.Total,
		ConfirmedAt:    o.ConfirmedAt,
	}
}

func fromRecord(rec *store.OrderRecord) *model.Order {
	return &model.Order{
		ID:             rec.ID,
		Number:         rec.Number,
		TenantID:       rec.TenantID,
		ConversationID: rec.ConversationID,
		RemoteID:       rec.RemoteID,
		RemoteNumber:   rec.RemoteNumber,
		Cart:           rec.Cart,
		Customer:       rec.Customer,
		Delivery:       rec.Delivery,
		Payment:        rec.Payment,
		PromoCode:      rec.PromoCode,
		Currency:       rec.Currency,
		Totals: model.Totals{
			Subtotal:    rec.Subtotal,
			Tax:         rec.Tax,
			DeliveryFee: rec.DeliveryFee,
			Discount:    rec.Discount,
			Total:       rec.Total,
		},
		Status:       model.OrderStatus(rec.Status),
		StatusReason: rec.StatusReason,
		CreatedAt:    rec.CreatedAt,
		ConfirmedAt:  rec.ConfirmedAt,
	}
}
