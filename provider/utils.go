package provider

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	domesticPattern = regexp.MustCompile(`^[0-9]{4,6}[A-Z]?$`)
	foreignPattern  = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)
)

// SymbolKind is the lexical classification of an identifier
type SymbolKind int

const (
	KindInvalid SymbolKind = iota
	KindDomestic
	KindForeign
)

// NormalizeSymbol uppercases and strips exchange suffixes like .TW / .TWO
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range []string{".TWO", ".TW"} {
		if strings.HasSuffix(symbol, suffix) {
			return strings.TrimSuffix(symbol, suffix)
		}
	}
	return symbol
}

// Classify tells domestic codes (leading digits) from foreign tickers (letters)
func Classify(symbol string) SymbolKind {
	symbol = NormalizeSymbol(symbol)
	switch {
	case domesticPattern.MatchString(symbol):
		return KindDomestic
	case foreignPattern.MatchString(symbol):
		return KindForeign
	default:
		return KindInvalid
	}
}

// IsNoData reports whether a raw field is one of the "no data" sentinels
func IsNoData(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "-", "--", "---", "—", "N/A", "n/a", "null", "NaN":
		return true
	}
	return false
}

// ParseField parses a numeric field, treating sentinels as absent. Thousands
// separators, a leading "+" and trailing "%" are tolerated.
func ParseField(s string) (float64, bool) {
	if IsNoData(s) {
		return 0, false
	}
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimPrefix(s, "$")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParsePrice parses a price field; non-positive values count as absent
func ParsePrice(s string) float64 {
	f, ok := ParseField(s)
	if !ok || f <= 0 {
		return 0
	}
	return f
}

// ParseVolume parses a volume field into whole units
func ParseVolume(s string) int64 {
	f, ok := ParseField(s)
	if !ok || f < 0 {
		return 0
	}
	return int64(f)
}

// PositiveOrZero drops non-finite and non-positive values
func PositiveOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	return f
}
