// Package store keeps the latest health record of every session and fans
// updates out to subscribers.
//
// The main components are:
//
//   - [Store]: storage and subscription operations
//   - [MemoryStore]: in-memory implementation with pub/sub
//   - [SessionRecord]: JSON representation of one session's health
//
// Subscribers receive updates over channels with non-blocking sends, so a
// slow subscriber misses updates rather than stalling the ping loops.
package store
