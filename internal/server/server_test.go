package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/keepalive/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore implements store.Store for testing.
type mockStore struct {
	mu          sync.RWMutex
	records     []store.SessionRecord
	subscribers map[chan store.SessionRecord]struct{}
	subMu       sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		records:     []store.SessionRecord{},
		subscribers: make(map[chan store.SessionRecord]struct{}),
	}
}

func (m *mockStore) Update(record store.SessionRecord) {
	m.mu.Lock()
	found := false
	for i, r := range m.records {
		if r.Name == record.Name {
			m.records[i] = record
			found = true
			break
		}
	}
	if !found {
		m.records = append(m.records, record)
	}
	m.mu.Unlock()

	m.subMu.Lock()
	for ch := range m.subscribers {
		select {
		case ch <- record:
		default:
		}
	}
	m.subMu.Unlock()
}

func (m *mockStore) GetAll() []store.SessionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.SessionRecord, len(m.records))
	copy(out, m.records)
	return out
}

func (m *mockStore) Subscribe() <-chan store.SessionRecord {
	ch := make(chan store.SessionRecord, 100)
	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

func (m *mockStore) Unsubscribe(ch <-chan store.SessionRecord) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// parseSSEEvents decodes every "data:" line of an SSE body.
func parseSSEEvents(body string) []store.SessionRecord {
	var records []store.SessionRecord
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var r store.SessionRecord
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &r); err == nil {
			records = append(records, r)
		}
	}
	return records
}

// --- REST ---

func TestHandleSessions(t *testing.T) {
	ms := newMockStore()
	ms.Update(store.SessionRecord{Name: "account-1", Token: "abcd…wxyz", Status: "connected"})
	ms.Update(store.SessionRecord{Name: "account-2", Status: "none_connection"})

	srv := NewServer(ms, 0, testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []store.SessionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "account-1", got[0].Name)
	assert.Equal(t, "connected", got[0].Status)
	assert.Equal(t, "abcd…wxyz", got[0].Token)
}

func TestHandleSessions_MethodNotAllowed(t *testing.T) {
	srv := NewServer(newMockStore(), 0, testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(newMockStore(), 0, testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	srv := NewServer(newMockStore(), 0, testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestUnknownRoute(t *testing.T) {
	srv := NewServer(newMockStore(), 0, testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- SSE ---

func TestHandleSSE_BasicFlow(t *testing.T) {
	ms := newMockStore()
	ms.Update(store.SessionRecord{Name: "account-1", Status: "connected"})
	ms.Update(store.SessionRecord{Name: "account-2", Status: "disconnected"})

	srv := NewServer(ms, 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	events := parseSSEEvents(rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "account-1", events[0].Name)
	assert.Equal(t, "disconnected", events[1].Status)
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// give handler time to subscribe
	time.Sleep(50 * time.Millisecond)
	ms.Update(store.SessionRecord{Name: "account-9", Status: "connected"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	assert.Contains(t, rec.Body.String(), "account-9")
}

func TestHandleSSE_Headers(t *testing.T) {
	srv := NewServer(newMockStore(), 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header { return n.header }

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) { n.statusCode = statusCode }

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv := NewServer(newMockStore(), 0, testLogger())
	w := &nonFlushWriter{header: make(http.Header)}

	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	assert.Equal(t, http.StatusInternalServerError, w.statusCode)
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	srv := NewServer(newMockStore(), 0, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	assert.LessOrEqual(t, after, before+2, "potential goroutine leak")
}

// TestHandleSSE_MultipleClientsShutdownIntegration uses real connections so
// write deadlines are supported.
func TestHandleSSE_MultipleClientsShutdownIntegration(t *testing.T) {
	ms := newMockStore()
	ms.Update(store.SessionRecord{Name: "account-1", Status: "connected"})

	srv := NewServer(ms, 0, testLogger())
	serverCtx, serverCancel := context.WithCancel(context.Background())

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// simulates BaseContext
		srv.handleSSE(w, r.WithContext(serverCtx))
	}))
	defer ts.Close()

	const numClients = 5
	var wg sync.WaitGroup
	started := make(chan struct{})
	var startedCount atomic.Int32

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := ts.Client().Get(ts.URL)
			if err != nil {
				return
			}
			defer func() { _ = resp.Body.Close() }()

			if startedCount.Add(1) == numClients {
				close(started)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
		}()
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Log("not all clients started, continuing anyway")
	}
	time.Sleep(100 * time.Millisecond)

	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all SSE clients disconnected after shutdown")
	}
}

// --- Start ---

func TestStart_ServesOverTCP(t *testing.T) {
	ms := newMockStore()
	ms.Update(store.SessionRecord{Name: "account-1", Status: "connected"})

	srv := NewServer(ms, 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, srv.Start(ctx))
	require.NotEmpty(t, srv.Addr())

	_, port, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%s/api/sessions", port))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "account-1")
}

func TestStart_DoneAfterShutdown(t *testing.T) {
	srv := NewServer(newMockStore(), 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, srv.Start(ctx))
	addr := srv.Addr()

	select {
	case <-srv.Done():
		t.Fatal("Done closed before cancellation")
	default:
	}

	cancel()
	select {
	case <-srv.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}

	// the port is free again
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	_ = ln.Close()
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	srv := NewServer(newMockStore(), port, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	srv := NewServer(newMockStore(), 99999, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, srv.Start(ctx))
}

func TestAddr_BeforeStart(t *testing.T) {
	assert.Empty(t, NewServer(newMockStore(), 0, nil).Addr())
}
