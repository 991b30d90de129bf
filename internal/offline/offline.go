// Package offline serves simulated quotes from a fixed baseline table when
// no network is available or every live adapter has failed. Prices are
// perturbed by a small bounded amount on each read so repeated views do not
// show a visibly frozen number; the perturbation is cosmetic and every quote
// is tagged Provider="Offline" so callers can never mistake it for live data.
package offline

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"portfolioquotes/internal/quote"
	"portfolioquotes/internal/symbols"
)

// ProviderName tags every quote served from the baseline table.
const ProviderName = "Offline"

// maxDrift bounds the cosmetic perturbation applied on each read.
const maxDrift = 0.02

// seedBucket groups reads into time buckets so the perturbation is
// deterministic within a bucket. Reproducible-test choice; the bucket width
// only needs to be short enough that the number visibly moves.
const seedBucket = 30 * time.Second

type baseline struct {
	name     string
	price    float64
	currency string
}

// table covers a representative slice of US equities, UCITS ETFs, crypto
// pairs and non-US listings. Baselines are plausible, not live.
var table = map[string]baseline{
	"AAPL":    {"Apple Inc.", 178.50, "USD"},
	"MSFT":    {"Microsoft Corporation", 415.20, "USD"},
	"GOOGL":   {"Alphabet Inc.", 142.30, "USD"},
	"AMZN":    {"Amazon.com Inc.", 176.80, "USD"},
	"NVDA":    {"NVIDIA Corporation", 885.00, "USD"},
	"META":    {"Meta Platforms Inc.", 495.40, "USD"},
	"TSLA":    {"Tesla Inc.", 248.90, "USD"},
	"JPM":     {"JPMorgan Chase & Co.", 198.60, "USD"},
	"KO":      {"The Coca-Cola Company", 60.15, "USD"},
	"JNJ":     {"Johnson & Johnson", 158.70, "USD"},
	"VWCE.DE": {"Vanguard FTSE All-World UCITS ETF", 112.40, "EUR"},
	"VUSA.L":  {"Vanguard S&P 500 UCITS ETF", 82.35, "GBP"},
	"SWDA.MI": {"iShares Core MSCI World UCITS ETF", 91.20, "EUR"},
	"CSPX.AS": {"iShares Core S&P 500 UCITS ETF", 520.10, "EUR"},
	"EIMI.L":  {"iShares Core MSCI EM IMI UCITS ETF", 30.55, "GBP"},
	"SPY":     {"SPDR S&P 500 ETF Trust", 512.30, "USD"},
	"QQQ":     {"Invesco QQQ Trust", 437.60, "USD"},
	"BTC-USD": {"Bitcoin", 62350.00, "USD"},
	"ETH-USD": {"Ethereum", 3420.00, "USD"},
	"BTC-EUR": {"Bitcoin (EUR)", 57800.00, "EUR"},
	"SOL-USD": {"Solana", 148.50, "USD"},
	"VOD.L":   {"Vodafone Group Plc", 0.6930, "GBP"},
	"ENI.MI":  {"Eni S.p.A.", 14.85, "EUR"},
	"SAP.DE":  {"SAP SE", 172.90, "EUR"},
	"ASML.AS": {"ASML Holding N.V.", 865.40, "EUR"},
	"NESN.SW": {"Nestlé S.A.", 93.70, "CHF"},
}

// Source serves quotes and searches from the baseline table.
type Source struct {
	// now is swappable in tests to pin the perturbation bucket.
	now func() time.Time
}

func New() *Source { return &Source{now: time.Now} }

// NewWithClock is like New but with an injected clock, for tests.
func NewWithClock(now func() time.Time) *Source { return &Source{now: now} }

// Quote returns a simulated quote for symbol, or ok=false when the table
// has no baseline for it.
func (s *Source) Quote(symbol string) (quote.Quote, bool) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	b, ok := table[key]
	if !ok {
		return quote.Quote{}, false
	}

	drift := s.drift(key)
	price := round4(b.price * (1 + drift))
	changeAbs := round4(price - b.price)
	changePct := 0.0
	if b.price > 0 {
		changePct = round4(changeAbs / b.price * 100)
	}

	return quote.Quote{
		Symbol:      key,
		DisplayName: b.name,
		Price:       price,
		ChangeAbs:   changeAbs,
		ChangePct:   changePct,
		DayLow:      round4(math.Min(price, b.price) * (1 - maxDrift/2)),
		DayHigh:     round4(math.Max(price, b.price) * (1 + maxDrift/2)),
		Open:        b.price,
		PrevClose:   b.price,
		Currency:    b.currency,
		Exchange:    symbols.ExchangeFromSuffix(key),
		Provider:    ProviderName,
		ReceivedAt:  s.now().UTC(),
	}, true
}

// Search matches query case-insensitively against symbols and names,
// capped at 10 results, ordered by symbol for stable output.
func (s *Source) Search(query string) []quote.SearchResult {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]quote.SearchResult, 0, 10)
	for _, k := range keys {
		b := table[k]
		if !strings.Contains(k, q) && !strings.Contains(strings.ToUpper(b.name), q) {
			continue
		}
		out = append(out, quote.SearchResult{
			Symbol:   k,
			Name:     b.name,
			Currency: b.currency,
			Exchange: symbols.ExchangeFromSuffix(k),
			Type:     symbols.Classify(k, b.name),
		})
		if len(out) == 10 {
			break
		}
	}
	return out
}

// drift returns a deterministic perturbation in [-maxDrift, +maxDrift]
// seeded by symbol and time bucket.
func (s *Source) drift(symbol string) float64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	bucket := s.now().Unix() / int64(seedBucket.Seconds())
	rng := rand.New(rand.NewSource(int64(h.Sum64()) ^ bucket))
	return (rng.Float64()*2 - 1) * maxDrift
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
