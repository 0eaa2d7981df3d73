// Package reconcile compares a locally persisted order with its remote counterpart.
// The local snapshot is authoritative for what the customer asked for; the diff
// only describes where the remote side disagrees.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// LineItemDiff describes how remote lines differ from local ones.
type LineItemDiff struct {
	Missing    []Line           // in the local order but not the remote one
	Unexpected []Line           // in the remote order but not the local one
	Changed    []QuantityChange // in both with different quantities
}

// IsEmpty returns true if both sides carry the same lines.
func (d *LineItemDiff) IsEmpty() bool {
	return len(d.Missing) == 0 && len(d.Unexpected) == 0 && len(d.Changed) == 0
}

// Line is one side's view of an order line.
type Line struct {
	ProductID      string
	PresentationID string // empty for multiplier-mode lines
	Quantity       int
}

// QuantityChange is a line present on both sides with different quantities.
type QuantityChange struct {
	ProductID      string
	PresentationID string
	Local          int
	Remote         int
}

// String renders the diff for discrepancy records.
func (d *LineItemDiff) String() string {
	if d.IsEmpty() {
		return "lines match"
	}
	s := ""
	for _, l := range d.Missing {
		s += fmt.Sprintf("missing %s x%d; ", lineKey(l.ProductID, l.PresentationID), l.Quantity)
	}
	for _, l := range d.Unexpected {
		s += fmt.Sprintf("unexpected %s x%d; ", lineKey(l.ProductID, l.PresentationID), l.Quantity)
	}
	for _, c := range d.Changed {
		s += fmt.Sprintf("quantity %s local %d remote %d; ", lineKey(c.ProductID, c.PresentationID), c.Local, c.Remote)
	}
	return s[:len(s)-2]
}

// DiffLineItems matches lines by product and presentation. Lines sharing a key
// on one side (same product, different modifiers) are summed before comparing.
// Results are sorted by key.
func DiffLineItems(local, remote []Line) *LineItemDiff {
	diff := &LineItemDiff{}

	localByKey := sumByKey(local)
	remoteByKey := sumByKey(remote)

	for _, key := range sortedKeys(localByKey) {
		l := localByKey[key]
		r, exists := remoteByKey[key]
		if !exists {
			diff.Missing = append(diff.Missing, l)
			continue
		}
		if l.Quantity != r.Quantity {
			diff.Changed = append(diff.Changed, QuantityChange{
				ProductID:      l.ProductID,
				PresentationID: l.PresentationID,
				Local:          l.Quantity,
				Remote:         r.Quantity,
			})
		}
	}

	for _, key := range sortedKeys(remoteByKey) {
		if _, exists := localByKey[key]; !exists {
			diff.Unexpected = append(diff.Unexpected, remoteByKey[key])
		}
	}

	return diff
}

func sumByKey(lines []Line) map[string]Line {
	out := make(map[string]Line, len(lines))
	for _, l := range lines {
		key := lineKey(l.ProductID, l.PresentationID)
		if prev, ok := out[key]; ok {
			prev.Quantity += l.Quantity
			out[key] = prev
			continue
		}
		out[key] = l
	}
	return out
}

func sortedKeys(m map[string]Line) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lineKey uses ProductID alone if there is no presentation.
func lineKey(productID, presentationID string) string {
	if presentationID == "" {
		return productID
	}
	return productID + ":" + presentationID
}

// TotalsDiff compares the local and remote grand totals.
type TotalsDiff struct {
	Local  decimal.Decimal
	Remote decimal.Decimal
	Delta  decimal.Decimal // Remote - Local
}

// Matches reports whether both totals agree to the cent.
func (d TotalsDiff) Matches() bool {
	return d.Delta.IsZero()
}

// DiffTotals compares totals after rounding both to cents.
func DiffTotals(local, remote decimal.Decimal) TotalsDiff {
	l := local.Round(2)
	r := remote.Round(2)
	return TotalsDiff{Local: l, Remote: r, Delta: r.Sub(l)}
}

// StatusChanged returns true if the remote reports a status the local order
// has not reached yet.
func StatusChanged(localRank, remoteRank int) bool {
	return remoteRank > localRank
}
