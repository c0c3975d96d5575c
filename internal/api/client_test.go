package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelight/storelight/internal/cache"
	"github.com/storelight/storelight/internal/session"
)

type recordingNotifier struct {
	toasts []string
	modals []string
}

func (n *recordingNotifier) Toast(message, level string) {
	n.toasts = append(n.toasts, message)
}

func (n *recordingNotifier) Modal(title, message, level string) {
	n.modals = append(n.modals, title+": "+message)
}

type recordingNavigator struct {
	pushes []string
}

func (n *recordingNavigator) Push(path string) { n.pushes = append(n.pushes, path) }

func newTestSession() *session.Identity {
	return session.New("tok-123", "dev-abc", "web")
}

func TestRequestResolvesData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":{"items":[]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
	data, err := c.Request(context.Background(), "/api/cart", nil, MethodGet, ContentForm, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(data))
}

func TestRequestDefaultsAbsentData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
	data, err := c.Request(context.Background(), "/api/profile", nil, MethodGet, ContentForm, nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestRequestSendsIdentityHeaders(t *testing.T) {
	var gotAuth, gotUUID, gotPlatform, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUUID = r.Header.Get("UUID")
		gotPlatform = r.Header.Get("Platform")
		gotContentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	sess := newTestSession()
	c := NewClient(srv.URL, sess, RejectingReporter{})

	_, err := c.Request(context.Background(), "/api/x", nil, MethodGet, ContentJSON, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "dev-abc", gotUUID)
	assert.Equal(t, "web", gotPlatform)
	assert.Equal(t, "application/json", gotContentType)
}

func TestRequestReadsTokenLive(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	sess := newTestSession()
	c := NewClient(srv.URL, sess, RejectingReporter{})

	// The token is read at call time, not at construction time.
	sess.SetToken("tok-refreshed")
	_, err := c.Request(context.Background(), "/api/x", nil, MethodGet, ContentForm, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-refreshed", gotAuth)
}

func TestRequestQueryString(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		params  Params
		wantURI string
	}{
		{"no params", "/api/list", nil, "/api/list"},
		{"params appended", "/api/list", Params{P("page", "2"), P("size", "10")}, "/api/list?page=2&size=10"},
		{"existing query extended", "/api/list?a=1", Params{P("b", "2")}, "/api/list?a=1&b=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotURI string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotURI = r.RequestURI
				_, _ = w.Write([]byte(`{"code":200}`))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
			_, err := c.Request(context.Background(), tt.url, tt.params, MethodGet, ContentForm, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURI, gotURI)
		})
	}
}

func TestRequestJSONBodyKeepsParamOrder(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
	_, err := c.Request(context.Background(), "/api/order", Params{
		P("sku", "A-1"), P("qty", "2"), P("note", "gift"),
	}, MethodPost, ContentJSON, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"sku":"A-1","qty":"2","note":"gift"}`, gotBody)
}

func TestRequestFormPostHasNoBody(t *testing.T) {
	var gotLen int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLen = r.ContentLength
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
	_, err := c.Request(context.Background(), "/api/order", Params{P("a", "1")}, MethodPost, ContentForm, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, gotLen, int64(0))
}

func TestCacheMethodDeduplicatesCalls(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"code":200,"data":{"items":[{"sku":"A-1"}]}}`))
	}))
	defer srv.Close()

	store := cache.NewMemory(10, time.Minute)
	c := NewClient(srv.URL, newTestSession(), RejectingReporter{}, WithCache(store))

	first, err := c.Request(context.Background(), "/api/cart", nil, MethodCache, ContentForm, nil)
	require.NoError(t, err)
	second, err := c.Request(context.Background(), "/api/cart", nil, MethodCache, ContentForm, nil)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, int64(1), calls.Load(), "second call must be served from cache")
}

func TestCacheMethodMissesAfterTTL(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"code":200,"data":{"n":1}}`))
	}))
	defer srv.Close()

	store := cache.NewMemory(10, time.Nanosecond)
	c := NewClient(srv.URL, newTestSession(), RejectingReporter{}, WithCache(store))

	_, err := c.Request(context.Background(), "/api/cart", nil, MethodCache, ContentForm, nil)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = c.Request(context.Background(), "/api/cart", nil, MethodCache, ContentForm, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load(), "expired entry must trigger a fresh call")
}

func TestCacheMethodSkipsCachingFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"code":500,"msg":"nope"}`))
	}))
	defer srv.Close()

	store := cache.NewMemory(10, time.Minute)
	c := NewClient(srv.URL, newTestSession(), RejectingReporter{}, WithCache(store))

	_, err := c.Request(context.Background(), "/api/cart", nil, MethodCache, ContentForm, nil)
	require.Error(t, err)
	_, err = c.Request(context.Background(), "/api/cart", nil, MethodCache, ContentForm, nil)
	require.Error(t, err)

	assert.Equal(t, int64(2), calls.Load(), "business failures must not populate the cache")
}

func TestSessionExpiredNavigatesOnClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":401}`))
	}))
	defer srv.Close()

	for _, method := range []Method{MethodGet, MethodPost, MethodCache} {
		t.Run(string(method), func(t *testing.T) {
			nav := &recordingNavigator{}
			reporter := &NotifyingReporter{Notifier: &recordingNotifier{}, Navigator: nav}
			c := NewClient(srv.URL, newTestSession(), reporter)

			data, err := c.Request(context.Background(), "/api/me", nil, method, ContentForm, nil)
			require.NoError(t, err, "client-side 401 resolves, never rejects")
			assert.Nil(t, data)
			assert.Equal(t, []string{LoginPath}, nav.pushes)
		})
	}
}

func TestSessionExpiredRejectsDuringRender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":401}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
	_, err := c.Request(context.Background(), "/api/me", nil, MethodGet, ContentForm, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestNotifyingReporterRoutesByLength(t *testing.T) {
	tests := []struct {
		name       string
		msg        string
		wantToasts int
		wantModals int
	}{
		{"short goes to toast", "out of stock", 1, 0},
		{"thirty chars still toast", strings.Repeat("x", 30), 1, 0},
		{"long goes to modal", strings.Repeat("x", 31), 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			reporter := &NotifyingReporter{Notifier: n, Navigator: &recordingNavigator{}}
			err := reporter.ReportFailure(&UniformError{Title: "Error!", Message: tt.msg})
			assert.NoError(t, err)
			assert.Len(t, n.toasts, tt.wantToasts)
			assert.Len(t, n.modals, tt.wantModals)
		})
	}
}

func TestBusinessErrorNotifiesAndResolvesNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":422,"msg":"invalid sku"}`))
	}))
	defer srv.Close()

	n := &recordingNotifier{}
	reporter := &NotifyingReporter{Notifier: n, Navigator: &recordingNavigator{}}
	c := NewClient(srv.URL, newTestSession(), reporter)

	data, err := c.Request(context.Background(), "/api/order", nil, MethodPost, ContentJSON, nil)
	require.NoError(t, err)
	assert.Nil(t, data)
	require.Len(t, n.toasts, 1)
	assert.Equal(t, "invalid sku", n.toasts[0])
}

func TestTransportFailureRejectsDuringRender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
	_, err := c.Request(context.Background(), "/api/cart", nil, MethodGet, ContentForm, nil)
	require.Error(t, err)

	var uerr *UniformError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "request failed", uerr.Title)
	assert.Contains(t, uerr.Message, "/api/cart")
}

func TestHTTPErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"db down"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
	_, err := c.Request(context.Background(), "/api/cart", nil, MethodGet, ContentForm, nil)
	require.Error(t, err)

	var uerr *UniformError
	require.ErrorAs(t, err, &uerr)
	assert.Contains(t, uerr.Message, "db down")
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("cache")
	require.NoError(t, err)
	assert.Equal(t, MethodCache, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodGet, m)

	_, err = ParseMethod("PATCH")
	assert.Error(t, err)
}

func TestParseContentType(t *testing.T) {
	ct, err := ParseContentType("json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct.MIME())

	ct, err = ParseContentType("")
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", ct.MIME())

	_, err = ParseContentType("xml")
	assert.Error(t, err)
}

func TestRequestReadsLargeBody(t *testing.T) {
	payload := strings.Repeat("x", 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":200,"data":{"blob":"` + payload + `"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
	data, err := c.Request(context.Background(), "/api/export", nil, MethodGet, ContentForm, nil)
	require.NoError(t, err)
	assert.Contains(t, string(data), payload, "the full body must survive the bounded read")
}

func TestRequestText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSession(), RejectingReporter{})
	body, err := c.RequestText(context.Background(), "/ping", nil, MethodGet, ContentForm, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", body)
}
