package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"order-engine/internal/adapter"
	"order-engine/internal/model"
	"order-engine/internal/reconcile"
)

// ReconcileResult describes one reconciliation pass.
type ReconcileResult struct {
	Order          *model.Order            `json:"order"`
	RemoteStatus   string                  `json:"remote_status"`
	StatusAdvanced bool                    `json:"status_advanced"`
	Lines          *reconcile.LineItemDiff `json:"-"`
	Totals         reconcile.TotalsDiff    `json:"-"`
	// ReportedTotal is the remote total; it wins for reporting when the two disagree.
	ReportedTotal decimal.Decimal `json:"reported_total"`
	Recorded      []Discrepancy   `json:"recorded,omitempty"`
}

// Reconciler compares local orders with their remote counterparts.
type Reconciler struct {
	repo   *Repository
	remote adapter.Commerce
	logger *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(repo *Repository, remote adapter.Commerce, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{repo: repo, remote: remote, logger: logger}
}

// Reconcile fetches the remote order, advances the local status when the
// remote is ahead, and records line, total or status mismatches. The local
// cart snapshot and totals are never rewritten.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID, ref string) (*ReconcileResult, error) {
	ord, err := r.repo.Get(ctx, tenantID, ref)
	if err != nil {
		return nil, err
	}
	if !ord.HasRemote() {
		return nil, model.NewValidationError("order", "order "+ord.Number+" was never submitted remotely")
	}
	if r.remote == nil {
		return nil, model.NewRemoteUnavailableError("get order", fmt.Errorf("no remote client configured"))
	}

	remote, err := r.remote.GetOrder(ctx, tenantID, ord.RemoteID)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{
		Order:         ord,
		RemoteStatus:  remote.Status,
		ReportedTotal: remote.Total,
	}

	mapped := MapRemoteStatus(remote.Status)
	if ord.Status.CanAdvanceTo(mapped) {
		advanced, err := r.repo.AdvanceStatus(ctx, ord.ID, mapped, "")
		if err != nil {
			return nil, err
		}
		if advanced {
			ord.Status = mapped
			ord.StatusReason = ""
			res.StatusAdvanced = true
		}
	}

	var found []Discrepancy
	if mapped.Rank() < ord.Status.Rank() {
		found = append(found, Discrepancy{
			Kind:   DiscrepancyStatus,
			Detail: fmt.Sprintf("remote reports %s, local order is %s", remote.Status, ord.Status),
		})
	}

	res.Lines = reconcile.DiffLineItems(localLines(ord), remoteLines(remote))
	if !res.Lines.IsEmpty() {
		found = append(found, Discrepancy{Kind: DiscrepancyLines, Detail: res.Lines.String()})
	}

	res.Totals = reconcile.DiffTotals(ord.Totals.Total, remote.Total)
	if !res.Totals.Matches() {
		found = append(found, Discrepancy{
			Kind:   DiscrepancyTotal,
			Detail: fmt.Sprintf("remote total differs by %s", model.FormatMoney(res.Totals.Delta)),
		})
	}

	if len(found) > 0 {
		existing, err := r.repo.Discrepancies(ctx, ord.ID)
		if err != nil {
			return nil, err
		}
		for _, d := range found {
			d.OrderID = ord.ID
			d.TenantID = tenantID
			d.LocalTotal = res.Totals.Local
			d.RemoteTotal = res.Totals.Remote
			if alreadyRecorded(existing, d) {
				continue
			}
			if err := r.repo.RecordDiscrepancy(ctx, d); err != nil {
				return nil, err
			}
			res.Recorded = append(res.Recorded, d)
			r.logger.Warn("order discrepancy",
				"order_id", ord.ID,
				"tenant", tenantID,
				"kind", d.Kind,
				"detail", d.Detail,
			)
		}
	}

	r.logger.Info("order reconciled",
		"order_id", ord.ID,
		"remote_id", ord.RemoteID,
		"status", ord.Status,
		"advanced", res.StatusAdvanced,
		"discrepancies", len(found),
	)
	return res, nil
}

// alreadyRecorded keeps repeated reconciliation from duplicating rows.
func alreadyRecorded(existing []Discrepancy, d Discrepancy) bool {
	for _, e := range existing {
		if e.Kind == d.Kind && e.Detail == d.Detail {
			return true
		}
	}
	return false
}

func localLines(o *model.Order) []reconcile.Line {
	out := make([]reconcile.Line, len(o.Cart.Items))
	for i, item := range o.Cart.Items {
		out[i] = reconcile.Line{
			ProductID:      item.ProductID,
			PresentationID: item.Selection.PresentationID,
			Quantity:       item.Quantity,
		}
	}
	return out
}

func remoteLines(r *adapter.RemoteOrder) []reconcile.Line {
	out := make([]reconcile.Line, len(r.Items))
	for i, item := range r.Items {
		out[i] = reconcile.Line{
			ProductID:      item.ProductID,
			PresentationID: item.PresentationID,
			Quantity:       item.Quantity,
		}
	}
	return out
}
