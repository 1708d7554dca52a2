package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"whatsbot/internal/constants"
	"whatsbot/internal/errors"
	"whatsbot/internal/metrics"
	"whatsbot/internal/privacy"
	"whatsbot/internal/tracing"
	"whatsbot/pkg/circuitbreaker"
)

const maxResponseBytes = 10 << 20

// Client talks to the bot backend over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	logger    *logrus.Logger
	metrics   *metrics.Registry
	userAgent string
	verbose   bool
	breaker   *circuitbreaker.CircuitBreaker
}

// ResolveBaseURL returns BOTADMIN_API_URL, then API_URL, then the default
// http://localhost:8000.
func ResolveBaseURL() string {
	for _, key := range []string{"BOTADMIN_API_URL", "API_URL"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return constants.DefaultAPIURL
}

// New builds a Client for baseURL. An empty baseURL resolves from the
// environment.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = ResolveBaseURL()
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.NewConfigError("api_url", fmt.Sprintf("invalid backend URL %q", baseURL))
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      &http.Client{Timeout: constants.DefaultHTTPTimeoutSec * time.Second},
		logger:    logger,
		metrics:   metrics.GetRegistry(),
		userAgent: constants.DefaultUserAgent,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CircuitStats reports the breaker guarding this client, if any.
func (c *Client) CircuitStats() (circuitbreaker.Stats, bool) {
	if c.breaker == nil {
		return circuitbreaker.Stats{}, false
	}
	return c.breaker.GetStats(), true
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// call describes one backend request. route is the path template used for
// metrics and span names so ids do not explode label cardinality.
type call struct {
	method      string
	route       string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	fields      logrus.Fields
}

func (c *Client) getJSON(ctx context.Context, route, path string, query url.Values, out interface{}) error {
	return c.do(ctx, call{method: http.MethodGet, route: route, path: path, query: query}, out)
}

func (c *Client) sendJSON(ctx context.Context, method, route, path string, payload, out interface{}, fields logrus.Fields) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to marshal request")
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, call{
		method:      method,
		route:       route,
		path:        path,
		body:        body,
		contentType: "application/json",
		fields:      fields,
	}, out)
}

func (c *Client) do(ctx context.Context, cl call, out interface{}) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, requestID := tracing.EnsureRequestID(ctx)
	ctx, span := tracing.StartClientSpan(ctx, cl.method, cl.route)
	labels := map[string]string{"method": cl.method, "endpoint": cl.route}
	stop := c.metrics.StartTimer(metrics.APIRequestLatency, labels, "Backend request latency")
	status := 0

	defer func() {
		elapsed := stop()
		tracing.EndSpan(span, status, err)
		c.metrics.IncrementCounter(metrics.APIRequests, labels, "Backend requests")

		entry := c.logger.WithFields(c.logFields(cl.fields)).WithFields(logrus.Fields{
			"method":      cl.method,
			"endpoint":    cl.path,
			"status_code": status,
			"duration_ms": elapsed.Milliseconds(),
			"request_id":  requestID,
		})
		if err != nil {
			c.metrics.IncrementCounter(metrics.APIRequestErrors, labels, "Backend request errors")
			entry.WithError(err).Warn("Backend request failed")
			return
		}
		entry.Debug("Backend request completed")
	}()

	if c.breaker == nil {
		status, err = c.send(ctx, cl, requestID, out)
		return err
	}
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		var sendErr error
		status, sendErr = c.send(ctx, cl, requestID, out)
		return sendErr
	})
}

// transportError separates the caller abandoning the call from the client
// timing out or the connection failing; only the latter is retryable.
func transportError(ctx context.Context, cl call, err error) *errors.AppError {
	if ctx.Err() != nil {
		return errors.NewAbortedError(cl.method, cl.path, err)
	}
	return errors.NewNetworkError(cl.method, cl.path, err)
}

func (c *Client) send(ctx context.Context, cl call, requestID string, out interface{}) (int, error) {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, cl.body)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(constants.RequestIDHeader, requestID)
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, transportError(ctx, cl, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, transportError(ctx, cl, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, errors.NewHTTPError(cl.method, cl.path, resp.StatusCode, parseDetail(data)).
			WithContext("request_id", requestID)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, errors.NewDecodeError(cl.path, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) logFields(fields logrus.Fields) logrus.Fields {
	if len(fields) == 0 || c.verbose {
		return fields
	}
	return logrus.Fields(privacy.MaskSensitiveFields(fields))
}

// parseDetail extracts the human-readable error from a backend error body.
// The backend answers {"detail": "..."}; request validation failures carry
// a list of objects with a "msg" field instead.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Msg string        `json:"msg"`
		Loc []interface{} `json:"loc"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if len(item.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", item.Loc[len(item.Loc)-1], item.Msg))
				continue
			}
			msgs = append(msgs, item.Msg)
		}
		return strings.Join(msgs, "; ")
	}
	return string(envelope.Detail)
}

func pathID(id string) string {
	return url.PathEscape(id)
}

func pageQuery(skip, limit int) url.Values {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", fmt.Sprint(skip))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	return q
}
