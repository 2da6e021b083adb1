package config

import "github.com/jpalmerr/keepalive"

// BuildOptions converts parsed configuration into SDK options for
// [keepalive.New]. The logger and callbacks are left to the caller.
func BuildOptions(cfg *Config) []keepalive.Option {
	opts := []keepalive.Option{
		keepalive.WithSessionURL(cfg.SessionURL),
		keepalive.WithPingURLs(cfg.PingURLs...),
		keepalive.WithPingInterval(cfg.PingInterval.Duration()),
		keepalive.WithRequestTimeout(cfg.RequestTimeout.Duration()),
		keepalive.WithMaxRetries(cfg.MaxRetries),
		keepalive.WithBackoffBase(cfg.BackoffBase.Duration()),
		keepalive.WithProtocolVersion(cfg.ProtocolVersion),
		keepalive.WithMaxPings(cfg.MaxPings),
		keepalive.WithStatusPort(cfg.StatusPort),
	}

	if cfg.TokenDelay != nil {
		opts = append(opts, keepalive.WithTokenDelay(cfg.TokenDelay.Duration()))
	}
	if cfg.FailureThreshold != nil {
		opts = append(opts, keepalive.WithFailureThreshold(*cfg.FailureThreshold))
	}
	if cfg.Mode == ModePool {
		opts = append(opts, keepalive.WithConcurrency(cfg.Concurrency))
	}
	if cfg.Referer != "" {
		opts = append(opts, keepalive.WithReferer(cfg.Referer))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, keepalive.WithHeaders(cfg.Headers))
	}

	return opts
}
