// Package quote resolves a reference price for a held symbol.
//
// A Resolver tries its sources in order (primary, then fallbacks), bounds
// every call with a timeout, and caches successful answers for a short
// TTL. No lookup ever returns an error to the caller: "unresolved" is an
// ordinary outcome.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"mtf-tracker/internal/model"
)

// Source is a market-data provider. LastPrice receives the broker symbol and
// is responsible for translating it to the provider's notation.
type Source interface {
	Name() string
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

var (
	// ErrNoPrice is returned when a provider answered without a usable price.
	ErrNoPrice = errors.New("no price in response")
)

// brokerSeries are the NSE series suffixes carried by broker trading symbols.
var brokerSeries = []string{"-EQ", "-BE", "-BZ", "-SM", "-ST", "-BL"}

// BaseSymbol strips the exchange series suffix: "RELIANCE-EQ" -> "RELIANCE".
func BaseSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suf := range brokerSeries {
		if strings.HasSuffix(s, suf) {
			return strings.TrimSuffix(s, suf)
		}
	}
	return s
}

// YahooSymbol maps a broker symbol to Yahoo Finance NSE notation.
func YahooSymbol(symbol string) string {
	return BaseSymbol(symbol) + ".NS"
}

// HTTPSource is a JSON quote endpoint. The price is picked out of the
// response body with a JSONPath expression.
type HTTPSource struct {
	name      string
	urlFor    func(symbol string) string
	pricePath string
	header    http.Header
	client    *http.Client
}

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	Name string
	// URLTemplate contains a single {symbol} placeholder, replaced by the
	// query-escaped output of MapSymbol.
	URLTemplate string
	PricePath   string // e.g. "$.chart.result[0].meta.regularMarketPrice"
	MapSymbol   func(string) string
	Header      http.Header
	Client      *http.Client
}

// NewHTTPSource creates a JSON quote source.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	mapSym := cfg.MapSymbol
	if mapSym == nil {
		mapSym = func(s string) string { return s }
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	tmpl := cfg.URLTemplate
	return &HTTPSource{
		name: cfg.Name,
		urlFor: func(symbol string) string {
			return strings.ReplaceAll(tmpl, "{symbol}", url.PathEscape(mapSym(symbol)))
		},
		pricePath: cfg.PricePath,
		header:    cfg.Header,
		client:    client,
	}
}

// NewYahooSource returns a source backed by the Yahoo Finance chart API.
// baseURL may be empty for the public endpoint.
func NewYahooSource(baseURL string, client *http.Client) *HTTPSource {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0")
	h.Set("Accept", "application/json")
	return NewHTTPSource(HTTPSourceConfig{
		Name:        "yahoo",
		URLTemplate: strings.TrimRight(baseURL, "/") + "/v8/finance/chart/{symbol}?interval=1m&range=1d",
		PricePath:   "$.chart.result[0].meta.regularMarketPrice",
		MapSymbol:   YahooSymbol,
		Header:      h,
		Client:      client,
	})
}

func (s *HTTPSource) Name() string { return s.name }

// LastPrice fetches and extracts the last traded price.
func (s *HTTPSource) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	addr := s.urlFor(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: create request: %w", s.name, err)
	}
	for k, vs := range s.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: fetch: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%s: unexpected status %d", s.name, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: read body: %w", s.name, err)
	}

	return ExtractPrice(raw, s.pricePath)
}

// ExtractPrice evaluates path against a JSON document and returns a
// positive price. Numbers and numeric strings are accepted.
func ExtractPrice(raw []byte, path string) (decimal.Decimal, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return decimal.Zero, fmt.Errorf("parse quote: %w", err)
	}
	val, err := jsonpath.Get(path, doc)
	if err != nil {
		return decimal.Zero, fmt.Errorf("eval %q: %w", path, err)
	}
	// jsonpath returns a list for wildcard or slice expressions; keep the first
	if list, ok := val.([]any); ok {
		if len(list) == 0 {
			return decimal.Zero, ErrNoPrice
		}
		val = list[0]
	}

	var price decimal.Decimal
	switch v := val.(type) {
	case float64:
		price = decimal.NewFromFloat(v)
	case string:
		p, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v), ",", ""))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrNoPrice, v)
		}
		price = p
	default:
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNoPrice, val)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive %s", ErrNoPrice, price)
	}
	return price, nil
}

// LTPFetcher is the broker's own last-traded-price endpoint.
type LTPFetcher interface {
	LTP(ctx context.Context, sess *model.Session, segment, symbol string) (decimal.Decimal, error)
}

// BrokerSource quotes through the broker, reusing the polling session.
type BrokerSource struct {
	fetcher  LTPFetcher
	sessions model.SessionProvider
	segment  string
}

// NewBrokerSource creates a broker-backed source for an exchange segment
// such as "nse_cm".
func NewBrokerSource(fetcher LTPFetcher, sessions model.SessionProvider, segment string) *BrokerSource {
	if segment == "" {
		segment = "nse_cm"
	}
	return &BrokerSource{fetcher: fetcher, sessions: sessions, segment: segment}
}

func (b *BrokerSource) Name() string { return "broker" }

func (b *BrokerSource) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sess, err := b.sessions.Current(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("broker: session: %w", err)
	}
	if !sess.Valid(time.Now()) {
		return decimal.Zero, errors.New("broker: no valid session")
	}
	price, err := b.fetcher.LTP(ctx, sess, b.segment, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return price, nil
}
