package poller

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClient_ConnectionReuse verifies that sequential posts to the same host
// reuse pooled connections.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer server.Close()

	client := NewClient(nil)

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		resp := client.Post(ctx, server.URL, []byte(`{}`), nil, 5*time.Second)
		require.NoError(t, resp.Error, "request %d", i)
	}

	// all requests after the first should reuse the connection
	assert.GreaterOrEqual(t, reusedCount, numRequests-2)
}

// TestClient_PostSendsBodyAndHeaders verifies the request shape.
func TestClient_PostSendsBodyAndHeaders(t *testing.T) {
	var (
		gotMethod string
		gotBody   string
		gotHeader string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Test")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	resp := NewClient(nil).Post(context.Background(), server.URL, []byte(`{"a":1}`),
		map[string]string{"X-Test": "yes"}, time.Second)

	require.NoError(t, resp.Error)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, "yes", gotHeader)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "done", string(resp.Body))
}

// TestClient_PostTimeout verifies the per-request timeout is enforced.
func TestClient_PostTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	resp := NewClient(nil).Post(context.Background(), server.URL, nil, nil, 50*time.Millisecond)

	require.Error(t, resp.Error)
	assert.Zero(t, resp.StatusCode)
}

// TestClient_WrapTransport verifies the wrap hook sees every request.
func TestClient_WrapTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var seen int
	client := NewClient(func(base http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			seen++
			return base.RoundTrip(req)
		})
	})

	resp := client.Post(context.Background(), server.URL, nil, nil, time.Second)
	require.NoError(t, resp.Error)
	assert.Equal(t, 1, seen)
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient(nil)

	client.Close()
	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client

	client.Close()
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
