package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"BillWatch/internal/config"
	"BillWatch/internal/domain"
	"BillWatch/internal/ports"
)

const maxBodyBytes = 8 << 20

// Client implements ports.Upstream against the legislative-records API.
// Calls are serialised through a limiter so consecutive requests are at
// least RequestDelay apart.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	attempts  int
	delay     time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

var _ ports.Upstream = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		attempts:  attempts,
		delay:     delay,
		clock:     clock.WallClock,
		logger:    logger,
	}
}

// Search returns one page of summary records. An empty or short page
// means the result set is exhausted.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) ([]domain.SearchHit, error) {
	body := map[string]any{
		"keyword":    q.Keyword,
		"categoryId": q.CategoryID,
		"scopeId":    q.ScopeID,
		"limit":      q.Limit,
		"offset":     q.Offset,
	}

	payload, err := c.call(ctx, http.MethodPost, "/search", body)
	if err != nil {
		return nil, err
	}

	items, err := decodeResults(payload)
	if err != nil {
		return nil, &domain.UpstreamError{Endpoint: "/search", StatusCode: http.StatusOK, Err: err}
	}

	hits := make([]domain.SearchHit, 0, len(items))
	for _, item := range items {
		hit := mapHit(item)
		if hit.ID == "" {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Detail fetches the full record. Unknown identifiers and empty payloads
// yield domain.ErrNotFound.
func (c *Client) Detail(ctx context.Context, id string) (domain.RecordDetail, error) {
	endpoint := "/records/" + url.PathEscape(id)

	payload, err := c.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) && upErr.StatusCode == http.StatusNotFound {
			return domain.RecordDetail{}, fmt.Errorf("detail %s: %w", id, domain.ErrNotFound)
		}
		return domain.RecordDetail{}, err
	}

	raw, err := decodeObject(payload)
	if err != nil {
		return domain.RecordDetail{}, &domain.UpstreamError{Endpoint: endpoint, StatusCode: http.StatusOK, Err: err}
	}
	if len(raw) == 0 {
		return domain.RecordDetail{}, fmt.Errorf("detail %s: empty payload: %w", id, domain.ErrNotFound)
	}

	detail := mapDetail(raw)
	if detail.ID == "" {
		detail.ID = id
	}
	detail.RawJSON, err = json.Marshal(raw)
	if err != nil {
		return domain.RecordDetail{}, fmt.Errorf("encode detail %s: %w", id, err)
	}
	return detail, nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var (
		payload []byte
		lastErr error
	)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			payload, lastErr = c.do(ctx, method, endpoint, body)
			return lastErr
		},
		IsFatalError: func(err error) bool { return !isTransient(err) },
		NotifyFunc: func(err error, attempt int) {
			c.logger.Debug("upstream call failed", "endpoint", endpoint, "attempt", attempt, "error", err)
		},
		Attempts:    c.attempts,
		Delay:       c.delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return payload, nil
	}
	// retry wraps the cause; callers classify on the typed error itself
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &domain.UpstreamError{Endpoint: endpoint, Err: err}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.UpstreamError{Endpoint: endpoint, Err: err}
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", endpoint, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var cause error
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			cause = errors.New(msg)
		}
		return nil, &domain.UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: cause}
	}

	decoded, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &domain.UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	payload, err := io.ReadAll(io.LimitReader(decoded, maxBodyBytes))
	if err != nil {
		return nil, &domain.UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	return payload, nil
}

// isTransient reports failures worth another attempt: transport errors,
// throttling and server errors.
func isTransient(err error) bool {
	var upErr *domain.UpstreamError
	if !errors.As(err, &upErr) {
		return false
	}
	if errors.Is(upErr.Err, context.Canceled) || errors.Is(upErr.Err, context.DeadlineExceeded) {
		return false
	}
	switch {
	case upErr.StatusCode == 0:
		return true
	case upErr.StatusCode == http.StatusTooManyRequests:
		return true
	case upErr.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

func decodeResults(payload []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var items []map[string]any
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
		return items, nil
	}

	var envelope struct {
		Results []map[string]any `json:"results"`
		Items   []map[string]any `json:"items"`
		Data    []map[string]any `json:"data"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	switch {
	case envelope.Results != nil:
		return envelope.Results, nil
	case envelope.Items != nil:
		return envelope.Items, nil
	default:
		return envelope.Data, nil
	}
}

func decodeObject(payload []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode detail: %w", err)
	}
	if inner, ok := raw["data"].(map[string]any); ok && len(raw) == 1 {
		return inner, nil
	}
	return raw, nil
}
