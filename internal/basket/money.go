package basket

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is a monetary amount in integer cents.
//
// Basket totals are recomputed from item sets after every transition, so
// amounts must be exact under addition and multiplication by a quantity.
// Integer cents avoid the float drift that incremental updates would
// accumulate; the wire format stays a plain decimal number.
type Money int64

// MoneyFromFloat converts a decimal amount (as received on the wire) to
// cents, rounding to the nearest cent.
func MoneyFromFloat(f float64) Money {
	return Money(math.Round(f * 100))
}

// ParseMoney parses a decimal string like "2.50" into cents.
// At most two fractional digits are accepted.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("parse money: empty amount")
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("parse money %q: more than two fractional digits", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", s, err)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", s, err)
	}

	m := Money(units*100 + cents)
	if neg {
		m = -m
	}
	return m, nil
}

// Float returns the amount as a decimal number for wire encoding.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// Mul multiplies the amount by an item quantity.
func (m Money) Mul(qty int) Money {
	return m * Money(qty)
}

// String renders the amount as a plain decimal, e.g. "8.00" or "-0.50".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a decimal number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// FormatCurrency renders the amount with a currency symbol for receipts
// and operator display, e.g. FormatCurrency(800, "USD") == "$ 8.00".
func FormatCurrency(m Money, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		// Unknown code: fall back to the bare decimal.
		return m.String()
	}
	p := message.NewPrinter(language.English)
	return p.Sprint(currency.Symbol(unit.Amount(m.Float())))
}
