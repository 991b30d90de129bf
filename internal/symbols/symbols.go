// Package symbols holds the pure symbol heuristics: normalization,
// asset-type classification and the exchange-suffix table shared by the
// classifier and the adapters.
package symbols

import (
	"fmt"
	"strings"

	"portfolioquotes/internal/quote"
)

// SuffixInfo describes what a ticker suffix implies about a listing.
type SuffixInfo struct {
	Suffix   string
	Currency string
	Exchange string
	// Variants are alternate spellings some upstreams use for the same
	// listing, in the order an adapter should try them.
	Variants []string
}

// suffixTable is consulted in order; first match wins. Keep the longest
// suffixes first if overlapping entries are ever added.
var suffixTable = []SuffixInfo{
	{Suffix: ".L", Currency: "GBP", Exchange: "London Stock Exchange", Variants: []string{".LON", ":LN"}},
	{Suffix: ".PA", Currency: "EUR", Exchange: "Euronext Paris", Variants: []string{".PAR"}},
	{Suffix: ".MI", Currency: "EUR", Exchange: "Borsa Italiana", Variants: []string{".MIL"}},
	{Suffix: ".DE", Currency: "EUR", Exchange: "XETRA", Variants: []string{".DEX", ".F"}},
	{Suffix: ".AS", Currency: "EUR", Exchange: "Euronext Amsterdam", Variants: []string{".AMS"}},
	{Suffix: ".SW", Currency: "CHF", Exchange: "SIX Swiss Exchange", Variants: []string{".SWX"}},
}

const (
	defaultCurrency = "USD"
	defaultExchange = "NASDAQ"
)

// Normalize uppercases and validates a raw symbol. Malformed input is a
// programming error on the caller side and is rejected before any network
// attempt is made.
func Normalize(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("empty symbol")
	}
	if len(s) > 20 {
		return "", fmt.Errorf("symbol %q too long", raw)
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == ':' || r == '^' || r == '=':
		default:
			return "", fmt.Errorf("symbol %q contains invalid character %q", raw, r)
		}
	}
	return s, nil
}

func lookupSuffix(symbol string) (SuffixInfo, bool) {
	s := strings.ToUpper(symbol)
	for _, e := range suffixTable {
		if strings.HasSuffix(s, e.Suffix) {
			return e, true
		}
	}
	return SuffixInfo{}, false
}

// CurrencyFromSuffix maps a ticker suffix to its trading currency.
// Unmapped suffixes default to USD.
func CurrencyFromSuffix(symbol string) string {
	if e, ok := lookupSuffix(symbol); ok {
		return e.Currency
	}
	return defaultCurrency
}

// ExchangeFromSuffix maps a ticker suffix to a display exchange label.
// Unmapped suffixes default to a generic US exchange.
func ExchangeFromSuffix(symbol string) string {
	if e, ok := lookupSuffix(symbol); ok {
		return e.Exchange
	}
	return defaultExchange
}

// Variants returns the ordered alternate spellings an adapter should try
// for a suffixed symbol before declaring failure: the symbol itself, the
// bare ticker with the suffix stripped, then each upstream-specific
// spelling. Unsuffixed symbols yield only themselves.
func Variants(symbol string) []string {
	s := strings.ToUpper(symbol)
	e, ok := lookupSuffix(s)
	if !ok {
		return []string{s}
	}
	base := strings.TrimSuffix(s, e.Suffix)
	out := make([]string, 0, 2+len(e.Variants))
	out = append(out, s, base)
	for _, v := range e.Variants {
		if strings.HasPrefix(v, ":") || strings.HasPrefix(v, ".") {
			out = append(out, base+v)
		} else {
			out = append(out, v)
		}
	}
	return out
}

// fund vocabulary checked against both symbol and description.
var fundWords = []string{"ETF", "FUND", "INDEX", "UCITS", "VANGUARD", "ISHARES", "SPDR", "AMUNDI", "XTRACKERS", "LYXOR"}

// known European ETF ticker prefixes (VWCE, VUSA, SWDA, EUNL, CSPX ...).
var etfPrefixes = []string{"VWCE", "VUSA", "VUAA", "SWDA", "EUNL", "CSPX", "IWDA", "EIMI", "XDWD"}

// Classify categorizes a symbol + free-text description into an AssetType.
// Decision order: fund vocabulary, crypto patterns, bond shapes, stock.
func Classify(symbol, description string) quote.AssetType {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	desc := strings.ToUpper(description)

	for _, w := range fundWords {
		if strings.Contains(desc, w) || strings.Contains(sym, w) {
			return quote.ETF
		}
	}
	for _, p := range etfPrefixes {
		if strings.HasPrefix(sym, p) {
			return quote.ETF
		}
	}

	if strings.Contains(sym, "BTC") || strings.Contains(sym, "ETH") ||
		strings.HasSuffix(sym, "USDT") || strings.Contains(sym, "-USD") || strings.Contains(sym, "-EUR") {
		return quote.Crypto
	}

	if isBondShaped(sym, desc) {
		return quote.Bond
	}
	return quote.Stock
}

// isBondShaped matches ISIN-like 12-char government bond codes and
// descriptions that tag a bond market (BTP, BUND, GILT, TREASURY ...).
func isBondShaped(sym, desc string) bool {
	if len(sym) == 12 && isISINLike(sym) {
		return true
	}
	for _, w := range []string{"BTP", "BUND", "GILT", "TREASURY", "GOVT BOND", "GOVERNMENT BOND"} {
		if strings.Contains(desc, w) {
			return true
		}
	}
	return false
}

func isISINLike(s string) bool {
	if len(s) != 12 {
		return false
	}
	// two-letter country code, nine alphanumerics, one check digit
	for i, r := range s {
		switch {
		case i < 2 && (r < 'A' || r > 'Z'):
			return false
		case i == 11 && (r < '0' || r > '9'):
			return false
		case (r < 'A' || r > 'Z') && (r < '0' || r > '9'):
			return false
		}
	}
	return true
}
