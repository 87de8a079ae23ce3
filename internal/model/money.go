package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseCents converts decimal string amounts (dollars) to cents (int64).
// Use for inputs expressed in major currency units (e.g., "99.00" = $99.00).
// Malformed input yields 0 rather than an error.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) int64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d.Mul(hundred).Round(0).IntPart()
}

// ParseMinorUnits converts string amounts already in minor units to int64.
// Square reports every money amount in minor units.
// Examples: "8900" → 8900, "100.99" → 100, "" → 0
func ParseMinorUnits(s string) int64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d.IntPart()
}

// ParsePercent reads the leading numeric prefix of a percentage string.
// "10%" → 10, " 12.5 % off" → 12.5, "%" → (0, false).
// A trailing "%" or any other suffix is ignored; ok is false when no digits lead the string.
func ParsePercent(s string) (decimal.Decimal, bool) {
	prefix := numericPrefix(s)
	if prefix == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(prefix)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// numericPrefix returns the longest leading [sign]digits[.digits] run after whitespace.
func numericPrefix(s string) string {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
			digits++
		}
	}
	if digits == 0 {
		return ""
	}
	prefix := strings.TrimSuffix(strings.TrimPrefix(s[:end], "+"), ".")
	// ".5" and "-.5" need a leading zero for the decimal parser
	if strings.HasPrefix(prefix, ".") {
		prefix = "0" + prefix
	} else if strings.HasPrefix(prefix, "-.") {
		prefix = "-0" + prefix[1:]
	}
	return prefix
}

// PercentString renders a percentage without the "%" sign in canonical form.
// "10.0", "10%" and "10" all render as "10". Malformed input renders as "".
func PercentString(s string) string {
	d, ok := ParsePercent(s)
	if !ok {
		return ""
	}
	return d.String()
}

// PercentOf returns amount × pct / 100 truncated to whole minor units.
func PercentOf(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).IntPart()
}

// FormatMoney renders minor units as a dollar string, e.g. 1234 → "$12.34".
func FormatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// FormatMoneyPtr is FormatMoney for optional amounts; nil renders as "N/A".
func FormatMoneyPtr(cents *int64) string {
	if cents == nil {
		return "N/A"
	}
	return FormatMoney(*cents)
}
