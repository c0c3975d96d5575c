package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/storelight/storelight/internal/cache"
	"github.com/storelight/storelight/internal/config"
	"github.com/storelight/storelight/internal/session"
)

// Client is the request gateway. One instance serves a whole environment;
// the session cell and failure reporter injected here decide how calls are
// authenticated and how failures surface.
type Client struct {
	host       string
	httpClient *http.Client
	cache      cache.Store
	session    *session.Identity
	reporter   FailureReporter
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.httpClient = c }
}

// WithTimeout sets the transport timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) { client.httpClient.Timeout = timeout }
}

// WithCache sets the store consulted by CACHE-method calls. Without one,
// CACHE degrades to a plain GET.
func WithCache(store cache.Store) Option {
	return func(client *Client) { client.cache = store }
}

// NewClient creates a gateway client against a single backend host.
func NewClient(host string, sess *session.Identity, reporter FailureReporter, opts ...Option) *Client {
	c := &Client{
		host:     strings.TrimSuffix(host, "/"),
		session:  sess,
		reporter: reporter,
		httpClient: &http.Client{
			Timeout: config.DefaultBackendTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request dispatches a call and resolves with the envelope's data payload.
//
// The three-way outcome mirrors the two environments:
//   - (data, nil): business success; data defaults to {} when absent
//   - (nil, nil):  failure already surfaced through the reporter
//     (notification shown, or login redirect on 401)
//   - (nil, err):  failure in a rejecting context; err is the classified
//     UniformError, or wraps ErrSessionExpired for a 401
func (c *Client) Request(ctx context.Context, url string, params Params, method Method, contentType ContentType, headers map[string]string) (json.RawMessage, error) {
	body, fromCache, resolvedURL, uerr := c.dispatch(ctx, url, params, method, contentType, headers)
	if uerr != nil {
		return nil, c.reporter.ReportFailure(uerr)
	}
	if fromCache {
		// Cached values are resolved payloads, not envelopes.
		return json.RawMessage(body), nil
	}
	return c.interpret(resolvedURL, method, body)
}

// RequestText dispatches a call and resolves with the raw response body,
// skipping envelope interpretation. For the few endpoints that return plain
// text or externally-defined JSON.
func (c *Client) RequestText(ctx context.Context, url string, params Params, method Method, contentType ContentType, headers map[string]string) (string, error) {
	body, _, _, uerr := c.dispatch(ctx, url, params, method, contentType, headers)
	if uerr != nil {
		return "", c.reporter.ReportFailure(uerr)
	}
	return string(body), nil
}

// dispatch builds and sends the HTTP call, returning the raw body or a
// classified failure. CACHE hits short-circuit before any network I/O.
func (c *Client) dispatch(ctx context.Context, url string, params Params, method Method, contentType ContentType, headers map[string]string) (body []byte, fromCache bool, resolvedURL string, uerr *UniformError) {
	if qs := params.Encode(); method.readLike() && qs != "" {
		if strings.Contains(url, "?") {
			url += "&" + qs
		} else {
			url += "?" + qs
		}
	}

	if method == MethodCache && c.cache != nil {
		if cached, ok := c.cache.Get(c.cacheKey(url)); ok {
			log.Debug().Str("url", url).Msg("gateway cache hit")
			return cached, true, url, nil
		}
	}

	var reqBody io.Reader
	if !method.readLike() && contentType != ContentForm {
		encoded, err := encodeParams(params)
		if err != nil {
			return nil, false, url, ClassifyTransport(url, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method.transport(), c.host+url, reqBody)
	if err != nil {
		return nil, false, url, ClassifyTransport(url, err)
	}

	claims := c.session.Snapshot()
	req.Header.Set("Authorization", "Bearer "+claims.Token)
	req.Header.Set("UUID", claims.DeviceID)
	req.Header.Set("Platform", claims.Platform)
	req.Header.Set("Content-Type", contentType.MIME())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debug().Str("method", string(method)).Str("url", c.host+url).Msg("gateway request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		uerr := ClassifyTransport(url, err)
		log.Error().Str("url", url).Str("title", uerr.Title).Msg("gateway transport failure")
		return nil, false, url, uerr
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, config.MaxResponseSize))
	if err != nil {
		return nil, false, url, ClassifyTransport(url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		uerr := ClassifyHTTP(url, resp.StatusCode, body)
		log.Error().Str("url", url).Int("status", resp.StatusCode).Msg("gateway http error")
		return nil, false, url, uerr
	}

	return body, false, url, nil
}

// interpret applies the business envelope rules to a transport success.
func (c *Client) interpret(url string, method Method, body []byte) (json.RawMessage, error) {
	code := gjson.GetBytes(body, "code").Int()

	switch code {
	case CodeOK:
		data := json.RawMessage("{}")
		if d := gjson.GetBytes(body, "data"); d.Exists() {
			data = json.RawMessage(d.Raw)
		}
		if method == MethodCache && c.cache != nil {
			c.cache.Set(c.cacheKey(url), data)
		}
		return data, nil

	case CodeSessionExpired:
		log.Warn().Str("url", url).Msg("session expired")
		return nil, c.reporter.SessionExpired()

	default:
		uerr := ClassifyBusiness(gjson.GetBytes(body, "msg").String(), body)
		log.Error().Str("url", url).Int64("code", code).Msg("gateway business error")
		return nil, c.reporter.ReportFailure(uerr)
	}
}

func (c *Client) cacheKey(url string) string {
	return c.host + url
}

// encodeParams serializes params as a JSON object in insertion order.
func encodeParams(params Params) ([]byte, error) {
	body := []byte("{}")
	var err error
	for _, p := range params {
		body, err = sjson.SetBytes(body, p.Key, p.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding body param %q: %w", p.Key, err)
		}
	}
	return body, nil
}
