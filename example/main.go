package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/keepalive"
)

func main() {
	// start mock service (see mock_server.go)
	go StartMockService(":9999")
	time.Sleep(100 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	runner, err := keepalive.New(
		keepalive.WithSessionURL("http://localhost:9999/api/auth/session"),
		keepalive.WithPingURLs(
			"http://localhost:9999/api/network/ping",
			"http://localhost:9999/api/network/ping?fallback=1",
		),
		keepalive.WithPingInterval(3*time.Second),
		keepalive.WithConcurrency(3),
		keepalive.WithStatusPort(8080),
		keepalive.WithLogger(logger),
		keepalive.WithStatusCallback(func(s keepalive.SessionStatus) {
			if s.Escalated {
				logger.Error("session keeps failing", "session", s.Name, "retries", s.Retries)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create runner", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  keepalive demo")
	fmt.Println()
	fmt.Println("  Sessions: http://localhost:8080/api/sessions")
	fmt.Println("  Live:     http://localhost:8080/api/sse")
	fmt.Println("  Metrics:  http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  alice stays up, revoke-bob is revoked after 5 pings,")
	fmt.Println("  nouid-carol never gets a session.")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx, []string{"alice", "revoke-bob", "nouid-carol"}); err != nil {
		slog.Error("keepalive error", "error", err)
		os.Exit(1)
	}
}
