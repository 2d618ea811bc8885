package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/vetclinic/storefront/internal/errors"
)

// =============================================================================
// Construction
// =============================================================================

func TestNew(t *testing.T) {
	client, err := New(Config{
		BaseURL:    "http://localhost:3000/",
		Service:    "cart",
		Timeout:    10 * time.Second,
		MaxRetries: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", client.baseURL)
	assert.Equal(t, 3, client.maxRetries)
	assert.Equal(t, 10*time.Second, client.httpClient.Timeout)
	assert.Equal(t, "cart", client.Service())
}

func TestNew_Defaults(t *testing.T) {
	client, err := New(Config{BaseURL: "http://localhost:3000"})
	require.NoError(t, err)

	assert.Equal(t, defaultMaxRetries, client.maxRetries)
	assert.Equal(t, defaultTimeout, client.httpClient.Timeout)
	assert.Equal(t, "storefront", client.Service())
	assert.Nil(t, client.limiter)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "localhost:3000", "ftp://host", "://bad"} {
		_, err := New(Config{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestNew_DoesNotMutateHTTPClient(t *testing.T) {
	hc := &http.Client{}
	_, err := New(Config{BaseURL: "http://localhost", HTTPClient: hc})
	require.NoError(t, err)
	assert.Nil(t, hc.Transport)
	assert.Zero(t, hc.Timeout)
}

// =============================================================================
// Requests
// =============================================================================

func TestClient_HeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cart", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		assert.Equal(t, "storefront-test", r.Header.Get("User-Agent"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "12", body["productId"])
		assert.Equal(t, float64(2), body["quantity"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client, err := New(Config{
		BaseURL:   server.URL,
		Token:     func() string { return "tok-1" },
		UserAgent: "storefront-test",
	})
	require.NoError(t, err)

	var out struct {
		OK bool `json:"ok"`
	}
	err = client.CallJSON(context.Background(), http.MethodPost, "/cart",
		map[string]interface{}{"productId": "12", "quantity": 2}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestClient_AnonymousOmitsAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Token: func() string { return "" }})
	require.NoError(t, err)

	_, err = client.Call(context.Background(), http.MethodGet, "/product", nil)
	require.NoError(t, err)
}

func TestClient_ErrorMessageFromBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Stock insuficiente"}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Service: "cart"})
	require.NoError(t, err)

	_, err = client.Call(context.Background(), http.MethodPost, "/cart", map[string]int{"quantity": 1})
	require.Error(t, err)

	apiErr := serrors.GetAPIError(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Stock insuficiente", apiErr.Message)
	assert.Equal(t, "cart", apiErr.Service)
}

func TestClient_ErrorWithoutMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, MaxRetries: -1})
	require.NoError(t, err)

	_, err = client.Call(context.Background(), http.MethodGet, "/cart", nil)
	require.Error(t, err)
	assert.Equal(t, "HTTP 500", serrors.GetAPIError(err).Message)
}

func TestClient_RetriesIdempotentRequests(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, MaxRetries: 2, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	body, err := client.Call(context.Background(), http.MethodGet, "/cart", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryPost(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	_, err = client.Call(context.Background(), http.MethodPost, "/order", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusServiceUnavailable, serrors.HTTPStatus(err))
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Call(ctx, http.MethodGet, "/cart", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, MaxBodyBytes: 16})
	require.NoError(t, err)

	_, err = client.Call(context.Background(), http.MethodGet, "/product", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}

func TestClient_RateLimited(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, RequestsPerSecond: 1, Burst: 1})
	require.NoError(t, err)
	require.NotNil(t, client.limiter)

	_, err = client.Call(context.Background(), http.MethodGet, "/cart", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, http.MethodGet, "/cart", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

// =============================================================================
// Helpers
// =============================================================================

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "bad", ErrorMessage([]byte(`{"message":"bad"}`)))
	assert.Equal(t, "nope", ErrorMessage([]byte(`{"error":"nope"}`)))
	assert.Equal(t, "", ErrorMessage([]byte(`{"message":""}`)))
	assert.Equal(t, "", ErrorMessage([]byte(`not json`)))
}

func TestReadAllWithLimit(t *testing.T) {
	data, truncated, err := ReadAllWithLimit(strings.NewReader("abcdef"), 4)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "abcd", string(data))

	data, truncated, err = ReadAllWithLimit(strings.NewReader("ab"), 4)
	require.NoError(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "ab", string(data))
}
