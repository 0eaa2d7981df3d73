// Package order persists checkouts and submits them to the remote commerce API.
//
// The local order is always written before any remote call. Remote failures
// never fail a checkout: the order stays local-only with a reason, and
// transient failures are retried later by the Resubmitter.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"order-engine/internal/adapter"
	"order-engine/internal/config"
	"order-engine/internal/model"
	"order-engine/internal/pricing"
)

// Local-only reasons.
const (
	ReasonRemoteDisabled = "remote submission disabled"
	ReasonLocalItems     = "cart contains local catalog items"
	ReasonNoClient       = "no remote client configured"
)

// SubmitRequest is everything checkout collected.
type SubmitRequest struct {
	Cart           *model.Cart
	Customer       model.Customer
	Delivery       model.Delivery
	Payment        model.Payment
	PromoCode      string
	ConversationID string
}

// Orchestrator runs order submission.
type Orchestrator struct {
	repo    *Repository
	remote  adapter.Commerce
	tenants map[string]config.Tenant
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator. remote may be nil, in which case
// every order is local-only.
func NewOrchestrator(repo *Repository, remote adapter.Commerce, tenants map[string]config.Tenant, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{repo: repo, remote: remote, tenants: tenants, logger: logger}
}

// Repository exposes the underlying store for read paths.
func (o *Orchestrator) Repository() *Repository {
	return o.repo
}

// Quote computes the totals a submission would persist, without writing anything.
func (o *Orchestrator) Quote(tenantID string, cart *model.Cart, delivery model.DeliveryMode, promoCode string) (model.Totals, error) {
	tenant, ok := o.tenants[tenantID]
	if !ok {
		return model.Totals{}, model.NewNotFoundError("tenant " + tenantID)
	}
	discount, err := PromoDiscount(tenant, promoCode)
	if err != nil {
		return model.Totals{}, err
	}
	return pricing.OrderTotals(cart, pricing.TotalsInput{
		TaxRate:         model.ParseMoney(tenant.TaxRate),
		DeliveryFee:     model.ParseMoney(tenant.DeliveryFee),
		Delivery:        delivery,
		DiscountPercent: discount,
	}), nil
}

// PromoDiscount returns the discount percentage of a tenant promo code.
// An empty code yields zero; an unknown one is a validation error.
func PromoDiscount(tenant config.Tenant, code string) (decimal.Decimal, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, nil
	}
	for k, pct := range tenant.PromoCodes {
		if strings.EqualFold(k, code) {
			return decimal.NewFromFloat(pct), nil
		}
	}
	return decimal.Zero, model.NewValidationError("promo_code", fmt.Sprintf("unknown code %q", code))
}

// Submit persists the order, then tries the remote API. The returned error is
// non-nil only for invalid input or when the local write fails.
func (o *Orchestrator) Submit(ctx context.Context, tenantID string, req SubmitRequest) (*model.Order, error) {
	tenant, ok := o.tenants[tenantID]
	if !ok {
		return nil, model.NewNotFoundError("tenant " + tenantID)
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	totals, err := o.Quote(tenantID, req.Cart, req.Delivery.Mode, req.PromoCode)
	if err != nil {
		return nil, err
	}

	ord := &model.Order{
		ID:             uuid.NewString(),
		Number:         newNumber(),
		TenantID:       tenantID,
		ConversationID: req.ConversationID,
		Cart:           req.Cart.Snapshot(),
		Customer:       req.Customer,
		Delivery:       req.Delivery,
		Payment:        req.Payment,
		PromoCode:      strings.TrimSpace(req.PromoCode),
		Currency:       tenant.Currency,
		Totals:         totals,
		Status:         model.StatusPending,
	}
	if err := o.repo.Create(ctx, ord); err != nil {
		o.logger.Error("order persistence failed", "tenant", tenantID, "order_id", ord.ID, "error", err)
		return nil, model.NewInternalError(err)
	}

	switch {
	case !tenant.RemoteOrders:
		o.keepLocal(ctx, ord, ReasonRemoteDisabled, false)
	case ord.Cart.HasSource(model.SourceLocal):
		o.keepLocal(ctx, ord, ReasonLocalItems, false)
	case o.remote == nil:
		o.keepLocal(ctx, ord, ReasonNoClient, false)
	default:
		if err := o.submitRemote(ctx, ord); err != nil {
			o.keepLocal(ctx, ord, "remote submission failed: "+errorReason(err), resubmittable(err))
		}
	}

	o.logger.Info("order placed",
		"tenant", tenantID,
		"order_id", ord.ID,
		"number", ord.DisplayNumber(),
		"status", ord.Status,
		"reason", ord.StatusReason,
		"total", model.FormatMoney(ord.Totals.Total),
	)
	return ord, nil
}

// submitRemote sends a persisted order and records the remote identifiers.
// ord only changes once the durable record does.
func (o *Orchestrator) submitRemote(ctx context.Context, ord *model.Order) error {
	payload, err := BuildPayload(ord)
	if err != nil {
		return err
	}

	remote, err := o.remote.CreateOrder(ctx, ord.TenantID, payload)
	if err != nil {
		return err
	}
	if remote == nil || remote.ID == "" {
		return model.NewRemoteRejectedError("create_order", http.StatusOK, "response carried no order id")
	}

	status := MapRemoteStatus(remote.Status)
	// The remote order exists now; losing the request context must not lose the ids.
	if err := o.repo.UpdateRemote(context.WithoutCancel(ctx), ord.ID, remote.ID, remote.Number, status); err != nil {
		o.logger.Error("recording remote order failed", "order_id", ord.ID, "remote_id", remote.ID, "error", err)
		return fmt.Errorf("%w %s: %v", errRecordRemote, remote.ID, err)
	}
	ord.RemoteID = remote.ID
	ord.RemoteNumber = remote.Number
	if ord.Status.CanAdvanceTo(status) {
		ord.Status = status
		ord.StatusReason = ""
	}
	return nil
}

func (o *Orchestrator) keepLocal(ctx context.Context, ord *model.Order, reason string, retry bool) {
	if _, err := o.repo.MarkLocalOnly(context.WithoutCancel(ctx), ord.ID, reason, retry); err != nil {
		o.logger.Error("marking order local-only failed", "order_id", ord.ID, "error", err)
		return
	}
	ord.Status = model.StatusLocalOnly
	ord.StatusReason = reason
	if retry {
		o.logger.Warn("order kept local", "order_id", ord.ID, "reason", reason, "resubmittable", true)
	}
}

func validateRequest(req SubmitRequest) error {
	if req.Cart.IsEmpty() {
		return model.NewValidationError("cart", "cart is empty")
	}
	if !req.Delivery.Mode.IsValid() {
		return model.NewValidationError("delivery", "choose pickup or delivery")
	}
	if req.Delivery.Mode == model.DeliveryDelivery && strings.TrimSpace(req.Delivery.Address) == "" {
		return model.NewValidationError("address", "delivery orders need an address")
	}
	if !req.Payment.Method.IsValid() {
		return model.NewValidationError("payment", "choose cash, card or transfer")
	}
	return nil
}

// errRecordRemote marks a remote order the local store failed to link. The
// idempotency key makes resubmitting it return the same remote order.
var errRecordRemote = errors.New("recording remote order")

// resubmittable reports whether a failed submission may succeed later.
// A cancelled request may still have reached the remote; the idempotency key
// makes a second attempt safe.
func resubmittable(err error) bool {
	return model.IsRetryable(err) || errors.Is(err, errRecordRemote) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func errorReason(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// newNumber returns a short human reference for a local order.
func newNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "L-" + strings.ToUpper(id[:8])
}

// reasonTime stamps resubmission reasons.
func reasonTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
