package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"with cents", "15.99", "15.99"},
		{"whole number", "2", "2.00"},
		{"zero", "0.00", "0.00"},
		{"empty string", "", "0.00"},
		{"whitespace", "  3.5 ", "3.50"},
		{"invalid string", "abc", "0.00"},
		{"negative delta", "-1.25", "-1.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatMoney(ParseMoney(tt.input))
			if got != tt.want {
				t.Errorf("ParseMoney(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestRoundMoney(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"2.675", "2.68"},
		{"-1.005", "-1.01"},
	}

	for _, tt := range tests {
		got := FormatMoney(RoundMoney(decimal.RequireFromString(tt.input)))
		if got != tt.want {
			t.Errorf("RoundMoney(%s) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestCents(t *testing.T) {
	if got := Cents(decimal.RequireFromString("35.98")); got != 3598 {
		t.Errorf("Cents(35.98) = %d, want 3598", got)
	}
	if got := Cents(decimal.Zero); got != 0 {
		t.Errorf("Cents(0) = %d, want 0", got)
	}
}
