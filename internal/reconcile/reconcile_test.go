package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDiffLineItems_Identical(t *testing.T) {
	lines := []Line{
		{ProductID: "prod001", PresentationID: "pres002", Quantity: 2},
		{ProductID: "prod002", Quantity: 1},
	}

	diff := DiffLineItems(lines, lines)

	if !diff.IsEmpty() {
		t.Errorf("IsEmpty() = false for identical lines: %+v", diff)
	}
	if diff.String() != "lines match" {
		t.Errorf("String() = %q, want %q", diff.String(), "lines match")
	}
}

func TestDiffLineItems_MissingAndUnexpected(t *testing.T) {
	local := []Line{
		{ProductID: "prod001", PresentationID: "pres001", Quantity: 1},
		{ProductID: "prod002", PresentationID: "pres010", Quantity: 3},
	}
	remote := []Line{
		{ProductID: "prod002", PresentationID: "pres010", Quantity: 3},
		{ProductID: "prod009", PresentationID: "pres090", Quantity: 1},
	}

	diff := DiffLineItems(local, remote)

	if len(diff.Missing) != 1 || diff.Missing[0].ProductID != "prod001" {
		t.Errorf("Missing = %+v, want prod001", diff.Missing)
	}
	if len(diff.Unexpected) != 1 || diff.Unexpected[0].ProductID != "prod009" {
		t.Errorf("Unexpected = %+v, want prod009", diff.Unexpected)
	}
	if len(diff.Changed) != 0 {
		t.Errorf("Changed = %+v, want none", diff.Changed)
	}
	want := "missing prod001:pres001 x1; unexpected prod009:pres090 x1"
	if diff.String() != want {
		t.Errorf("String() = %q, want %q", diff.String(), want)
	}
}

func TestDiffLineItems_QuantityChange(t *testing.T) {
	local := []Line{{ProductID: "prod001", PresentationID: "pres002", Quantity: 2}}
	remote := []Line{{ProductID: "prod001", PresentationID: "pres002", Quantity: 1}}

	diff := DiffLineItems(local, remote)

	if len(diff.Changed) != 1 {
		t.Fatalf("Changed = %d, want 1", len(diff.Changed))
	}
	if diff.Changed[0].Local != 2 || diff.Changed[0].Remote != 1 {
		t.Errorf("Changed[0] = %+v, want local 2 remote 1", diff.Changed[0])
	}
}

func TestDiffLineItems_SumsSameKey(t *testing.T) {
	// Same presentation with different modifiers is two local lines.
	local := []Line{
		{ProductID: "prod001", PresentationID: "pres002", Quantity: 1},
		{ProductID: "prod001", PresentationID: "pres002", Quantity: 2},
	}
	remote := []Line{{ProductID: "prod001", PresentationID: "pres002", Quantity: 3}}

	if diff := DiffLineItems(local, remote); !diff.IsEmpty() {
		t.Errorf("diff = %+v, want empty", diff)
	}
}

func TestDiffLineItems_PresentationDistinguishes(t *testing.T) {
	local := []Line{{ProductID: "prod001", PresentationID: "pres001", Quantity: 1}}
	remote := []Line{{ProductID: "prod001", PresentationID: "pres002", Quantity: 1}}

	diff := DiffLineItems(local, remote)

	if len(diff.Missing) != 1 || len(diff.Unexpected) != 1 {
		t.Errorf("diff = %+v, want one missing and one unexpected", diff)
	}
}

func TestDiffTotals(t *testing.T) {
	tests := []struct {
		name    string
		local   string
		remote  string
		matches bool
		delta   string
	}{
		{"equal", "35.98", "35.98", true, "0"},
		{"equal after rounding", "35.98", "35.9801", true, "0"},
		{"remote higher", "35.98", "38.50", false, "2.52"},
		{"remote lower", "20.00", "18.00", false, "-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DiffTotals(decimal.RequireFromString(tt.local), decimal.RequireFromString(tt.remote))
			if d.Matches() != tt.matches {
				t.Errorf("Matches() = %v, want %v", d.Matches(), tt.matches)
			}
			if !d.Delta.Equal(decimal.RequireFromString(tt.delta)) {
				t.Errorf("Delta = %s, want %s", d.Delta, tt.delta)
			}
		})
	}
}

func TestStatusChanged(t *testing.T) {
	if !StatusChanged(2, 3) {
		t.Error("StatusChanged(2, 3) = false, want true")
	}
	if StatusChanged(3, 3) || StatusChanged(4, 2) {
		t.Error("StatusChanged reported a change for same or lower rank")
	}
}
