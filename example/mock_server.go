package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// mockAccount tracks pings and the scripted fate of one token.
type mockAccount struct {
	uid       string
	pings     int
	revokeAt  int
	flakyRate float64
}

// StartMockService runs a fake session service on addr.
//
// Tokens starting with "revoke-" are revoked on their fifth ping; tokens
// starting with "nouid-" authenticate without a uid. Every other token
// gets a flaky ping endpoint that fails about a quarter of the time.
// Call this in a goroutine before creating the runner.
func StartMockService(addr string) {
	var (
		accounts = make(map[string]*mockAccount)
		mu       sync.Mutex
	)

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/session", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		mu.Lock()
		acct, ok := accounts[token]
		if !ok {
			acct = &mockAccount{uid: "uid-" + token, flakyRate: 0.25}
			if strings.HasPrefix(token, "revoke-") {
				acct.revokeAt = 5
			}
			accounts[token] = acct
		}
		uid := acct.uid
		mu.Unlock()

		data := map[string]any{"name": token}
		if !strings.HasPrefix(token, "nouid-") {
			data["uid"] = uid
		}
		writeJSON(w, map[string]any{"code": 0, "data": data})
	})

	mux.HandleFunc("/api/network/ping", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

		mu.Lock()
		acct, ok := accounts[token]
		if ok {
			acct.pings++
		}
		mu.Unlock()

		switch {
		case !ok:
			w.WriteHeader(http.StatusUnauthorized)
		case acct.revokeAt > 0 && acct.pings >= acct.revokeAt:
			slog.Info("mock revoking session", "uid", acct.uid)
			writeJSON(w, map[string]any{"code": 403})
		case rand.Float64() < acct.flakyRate:
			writeJSON(w, map[string]any{"code": 1, "msg": "busy"})
		default:
			writeJSON(w, map[string]any{"code": 0})
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("mock service stopped", "error", err)
	}
}
