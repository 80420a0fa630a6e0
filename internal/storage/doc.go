// Package storage is the durable, append-only step event log.
//
// It is the single source of truth for every scheduling decision: the
// scheduler reconstructs all of its state from this log after a restart.
// Events are never updated or deleted by the daemon; the log grows until an
// operator compacts it (bookmillctl is the operator surface).
package storage
