// Package index stores mined messages in a full-text searchable document
// index and serializes writers across goroutines and processes.
package index

import (
	"context"
	"time"
)

// DirName is the directory under the data dir that holds the index files.
const DirName = "indexdir"

// LockName is the lock file under the data dir guarding index access.
const LockName = "mutex"

// Record is one indexed message. Empty strings are stored as absent values.
type Record struct {
	Kind       string    `json:"kind"`
	FromID     string    `json:"from_id"`
	Username   string    `json:"username,omitempty"`
	Alias      string    `json:"alias,omitempty"`
	ToUsername string    `json:"to_username,omitempty"`
	ToAlias    string    `json:"to_alias,omitempty"`
	ToID       string    `json:"to_id"`
	Chat       string    `json:"chat"`
	Media      string    `json:"media,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Query selects records for Search. Limit <= 0 means no limit.
type Query struct {
	Text string
	// Field defaults to DefaultField.
	Field string
	Limit int
	// Raw passes Text to the engine as FTS5 query syntax instead of
	// quoting each term.
	Raw bool
}

// Batch is an open write transaction.
type Batch interface {
	Add(ctx context.Context, rec Record) error
	Commit() error
	Rollback() error
}

// Engine is the document index the miner writes to.
type Engine interface {
	Begin(ctx context.Context) (Batch, error)
	Search(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// ChatSummary describes one conversation present in the index.
type ChatSummary struct {
	Kind     string `json:"kind"`
	Chat     string `json:"slug"`
	ToID     string `json:"id"`
	Messages int    `json:"messages"`
}

// PeerSummary describes one sender present in the index.
type PeerSummary struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Alias    string `json:"alias,omitempty"`
	Messages int    `json:"messages"`
}
