package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
	"golang.org/x/net/publicsuffix"
)

// A valid User-Agent is crucial, Yahoo rejects the Go default.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

var crumbRe = regexp.MustCompile(`"CrumbStore":\{"crumb":"(.*?)"\}`)

// Yahoo fetches quotes from the Yahoo Finance quote API. The v7 endpoint
// requires session cookies and a crumb token, obtained by visiting a quote
// page first.
type Yahoo struct {
	client *http.Client
	crumb  string
}

// NewYahoo creates a Yahoo provider with a fresh cookie session.
func NewYahoo() (*Yahoo, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Yahoo{client: &http.Client{Jar: jar, Timeout: 20 * time.Second}}, nil
}

func (y *Yahoo) Name() string { return "yahoo" }

// initSession visits a quote page to collect cookies and extract the crumb.
func (y *Yahoo) initSession(ctx context.Context) error {
	body, err := y.get(ctx, "https://finance.yahoo.com/quote/VHYL.L")
	if err != nil {
		return fmt.Errorf("cannot initialize yahoo session: %w", err)
	}
	matches := crumbRe.FindSubmatch(body)
	if len(matches) < 2 {
		return fmt.Errorf("no crumb in yahoo response, the page structure may have changed")
	}
	y.crumb = string(matches[1])
	return nil
}

// Fetch returns the regular market price for a symbol.
func (y *Yahoo) Fetch(ctx context.Context, symbol string) (Quote, error) {
	if y.crumb == "" {
		if err := y.initSession(ctx); err != nil {
			return Quote{}, err
		}
	}

	addr := fmt.Sprintf("https://query2.finance.yahoo.com/v7/finance/quote?symbols=%s&crumb=%s",
		url.QueryEscape(symbol), url.QueryEscape(y.crumb))
	body, err := y.get(ctx, addr)
	if err != nil {
		return Quote{}, fmt.Errorf("cannot fetch quote for %q: %w", symbol, err)
	}

	var jobj any
	if err := json.Unmarshal(body, &jobj); err != nil {
		return Quote{}, fmt.Errorf("cannot parse quote response for %q: %w", symbol, err)
	}

	price, err := jsonNumber(jobj, "$.quoteResponse.result[0].regularMarketPrice")
	if err != nil {
		// No result for the symbol: not a transport error.
		return Quote{Symbol: symbol}, nil
	}
	q := Quote{Symbol: symbol, Timestamp: time.Now()}
	d := decimal.NewFromFloat(price)
	q.Price = &d
	if cur, err := jsonString(jobj, "$.quoteResponse.result[0].currency"); err == nil {
		q.Currency = cur
	}
	return q, nil
}

func (y *Yahoo) get(ctx context.Context, addr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %v/%v: %v", resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	return body, nil
}

func jsonNumber(jobj any, path string) (float64, error) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return 0, err
	}
	// jsonpath sometimes wraps a single answer in a list.
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	val, ok := jval.(float64)
	if !ok {
		return 0, fmt.Errorf("value at %q is not a number: %v", path, jval)
	}
	return val, nil
}

func jsonString(jobj any, path string) (string, error) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return "", err
	}
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	val, ok := jval.(string)
	if !ok {
		return "", fmt.Errorf("value at %q is not a string: %v", path, jval)
	}
	return val, nil
}
