package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseCents(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"whole number", "99.00", 9900},
		{"with cents", "123.45", 12345},
		{"zero", "0.00", 0},
		{"empty string", "", 0},
		{"large value", "1234567.89", 123456789},
		{"no decimals", "100", 10000},
		{"one decimal", "99.9", 9990},
		{"small value", "0.01", 1},
		{"invalid string", "abc", 0},
		{"negative (unusual)", "-10.00", -1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCents(tt.input)
			if got != tt.want {
				t.Errorf("ParseCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMinorUnits(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"integer string", "8900", 8900},
		{"zero", "0", 0},
		{"empty string", "", 0},
		{"negative", "-500", -500},
		{"invalid string", "abc", 0},
		{"with decimal (truncates)", "100.99", 100},
		{"whitespace only", "   ", 0},
		{"leading zeros", "007", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMinorUnits(tt.input)
			if got != tt.want {
				t.Errorf("ParseMinorUnits(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"10%", "10", true},
		{"10", "10", true},
		{"12.5 %", "12.5", true},
		{" 7.25% off", "7.25", true},
		{"10.", "10", true},
		{".5%", "0.5", true},
		{"-3%", "-3", true},
		{"%", "0", false},
		{"", "0", false},
		{"abc", "0", false},
		{"ten%", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParsePercent(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParsePercent(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParsePercent(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestPercentString(t *testing.T) {
	for input, want := range map[string]string{
		"10.0": "10",
		"10%":  "10",
		"11":   "11",
		"2.50": "2.5",
		"bad":  "",
	} {
		if got := PercentString(input); got != want {
			t.Errorf("PercentString(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPercentOf(t *testing.T) {
	if got := PercentOf(3000, decimal.NewFromInt(10)); got != 300 {
		t.Errorf("PercentOf(3000, 10) = %d, want 300", got)
	}
	// 333 × 10% = 33.3 → truncated
	if got := PercentOf(333, decimal.NewFromInt(10)); got != 33 {
		t.Errorf("PercentOf(333, 10) = %d, want 33", got)
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{1234, "$12.34"},
		{100000, "$1000.00"},
		{-250, "-$2.50"},
	}
	for _, tt := range tests {
		if got := FormatMoney(tt.cents); got != tt.want {
			t.Errorf("FormatMoney(%d) = %s, want %s", tt.cents, got, tt.want)
		}
	}

	if got := FormatMoneyPtr(nil); got != "N/A" {
		t.Errorf("FormatMoneyPtr(nil) = %s, want N/A", got)
	}
}
