// Package poller provides the HTTP calling layer for keepalive.
//
// The main components are:
//
//   - [Client]: pooled HTTP client with per-request timeouts and size limits
//   - [Caller]: bearer-token JSON caller with validation and exponential backoff
//   - [Result]: a validated service response
//
// A [Caller] never returns an error. Failed attempts are retried and an
// exhausted call yields a nil [Result], which callers treat as "no result".
package poller
