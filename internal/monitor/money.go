package monitor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Cents is a fixed-point currency amount. Comparisons and arithmetic on
// prices must go through integer cents, never binary floating point.
type Cents int64

var priceRe = regexp.MustCompile(`([0-9][0-9,]*)(?:\.([0-9]{1,2}))?`)

// ParseCents extracts the first currency amount from rendered price text
// such as "$1,299.00" or "Now $5.98".
func ParseCents(text string) (Cents, error) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no numeric price in %q", text)
	}
	whole, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	frac := int64(0)
	if m[2] != "" {
		digits := m[2]
		if len(digits) == 1 {
			digits += "0"
		}
		frac, err = strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse price fraction %q: %w", text, err)
		}
	}
	return Cents(whole*100 + frac), nil
}

// Float64 converts to dollars for export and threshold math.
func (c Cents) Float64() float64 {
	return float64(c) / 100
}

// String renders the amount as $1,234.56.
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := strconv.FormatInt(v/100, 10)
	var grouped strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		grouped.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if grouped.Len() > 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteString(whole[i : i+3])
	}
	return fmt.Sprintf("%s$%s.%02d", sign, grouped.String(), v%100)
}

// PctOff computes the discount fraction 1 - price/was, clamped to [0, 1].
// It returns 0 when no was-price is available.
func PctOff(price, was Cents) float64 {
	if was <= 0 || price < 0 {
		return 0
	}
	pct := 1 - float64(price)/float64(was)
	if pct < 0 {
		return 0
	}
	if pct > 1 {
		return 1
	}
	return pct
}
