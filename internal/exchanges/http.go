package exchanges

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPriceField = "price"
	maxAttempts       = 3
)

// HTTPConfig describes a REST ticker endpoint. URL may contain a {symbol}
// placeholder; otherwise the symbol is sent as the "symbol" query parameter.
type HTTPConfig struct {
	Name    string
	URL     string
	Field   string
	Timeout time.Duration
	Backoff time.Duration
}

// HTTPSource polls a REST ticker endpoint that returns a JSON object holding
// the last price under Field (number or numeric string).
type HTTPSource struct {
	name       string
	url        string
	field      string
	backoff    time.Duration
	httpClient *http.Client
}

func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("http source: name is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("http source %s: url is required", cfg.Name)
	}
	field := cfg.Field
	if field == "" {
		field = defaultPriceField
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &HTTPSource{
		name:    cfg.Name,
		url:     cfg.URL,
		field:   field,
		backoff: backoff,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (s *HTTPSource) Name() string {
	return s.name
}

func (s *HTTPSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(symbol), nil)
	if err != nil {
		return 0, err
	}
	var body map[string]any
	if err := s.do(ctx, req, &body); err != nil {
		return 0, fmt.Errorf("%s ticker %s: %w", s.name, symbol, err)
	}
	price, err := parsePrice(body[s.field])
	if err != nil {
		return 0, fmt.Errorf("%s ticker %s field %q: %w", s.name, symbol, s.field, err)
	}
	return price, nil
}

func (s *HTTPSource) endpoint(symbol string) string {
	if strings.Contains(s.url, "{symbol}") {
		return strings.ReplaceAll(s.url, "{symbol}", url.PathEscape(symbol))
	}
	u, err := url.Parse(s.url)
	if err != nil {
		return s.url
	}
	q := u.Query()
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *HTTPSource) do(ctx context.Context, req *http.Request, dst any) error {
	var attempt int
	for {
		attempt++
		resp, err := s.httpClient.Do(req)
		if err != nil {
			if shouldRetry(attempt, 0) && s.wait(ctx, attempt) {
				continue
			}
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			defer resp.Body.Close()
			return json.NewDecoder(resp.Body).Decode(dst)
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()

		if shouldRetry(attempt, resp.StatusCode) && s.wait(ctx, attempt) {
			continue
		}
		return fmt.Errorf("ticker API %s: %s", resp.Status, string(body))
	}
}

// wait sleeps for the attempt's backoff and reports false if ctx ended first.
func (s *HTTPSource) wait(ctx context.Context, attempt int) bool {
	backoff := s.backoff * time.Duration(1<<uint(attempt-1))
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func shouldRetry(attempt int, status int) bool {
	if attempt >= maxAttempts {
		return false
	}
	if status == 0 {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func parsePrice(v any) (float64, error) {
	switch p := v.(type) {
	case float64:
		return p, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(p), 64)
	case nil:
		return 0, ErrNoPrice
	default:
		return 0, fmt.Errorf("unexpected price type %T", v)
	}
}
