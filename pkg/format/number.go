package format

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

type symbols struct {
	group   string
	decimal string
	// minGrouping is the number of integer digits above three that must be
	// present before a group separator is used; es-ES leaves "1234" alone
	// but writes "12.345".
	minGrouping int
	percent     string
}

func symbolsFor(tag language.Tag) symbols {
	if isSpanish(tag) {
		return symbols{group: ".", decimal: ",", minGrouping: 2, percent: "\u00a0%"}
	}
	return symbols{group: ",", decimal: ".", minGrouping: 1, percent: "%"}
}

// Number renders n with up to three fraction digits.
func (f *Formatter) Number(n float64) string {
	if s, ok := nonFinite(n); ok {
		return s
	}
	return f.fixed(n, 3, true)
}

// Int renders an integer with locale grouping.
func (f *Formatter) Int(n int64) string {
	return f.Number(float64(n))
}

// Percentage renders n, which is already expressed in percent, with exactly
// one fraction digit: 89.5 -> "89,5 %" (es-ES) or "89.5%" (en).
func (f *Formatter) Percentage(n float64) string {
	if s, ok := nonFinite(n); ok {
		return s + f.symbols.percent
	}
	return f.fixed(n, 1, false) + f.symbols.percent
}

func (f *Formatter) fixed(n float64, digits int, trim bool) string {
	s := strconv.FormatFloat(math.Abs(n), 'f', digits, 64)

	intPart, frac, _ := strings.Cut(s, ".")
	if trim {
		frac = strings.TrimRight(frac, "0")
	}

	var b strings.Builder
	if n < 0 && (strings.Trim(intPart, "0") != "" || strings.Trim(frac, "0") != "") {
		b.WriteByte('-')
	}
	b.WriteString(f.group(intPart))
	if frac != "" {
		b.WriteString(f.symbols.decimal)
		b.WriteString(frac)
	}
	return b.String()
}

func (f *Formatter) group(digits string) string {
	if len(digits) < 3+f.symbols.minGrouping {
		return digits
	}

	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(f.symbols.group)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func nonFinite(n float64) (string, bool) {
	switch {
	case math.IsNaN(n):
		return "NaN", true
	case math.IsInf(n, 1):
		return "∞", true
	case math.IsInf(n, -1):
		return "-∞", true
	}
	return "", false
}
