// Package store provides the key-value storage abstraction shared by every
// service. All cross-request state lives here; the store is the sole
// coordination point between handlers. Two interchangeable backends exist:
// a local SQLite file and an S3 bucket.
package store

import "context"

// Logical namespaces. Each service gets its own keyspace.
const (
	NamespaceSessions  = "sessions"
	NamespaceSync      = "sync"
	NamespaceUsage     = "usage"
	NamespaceLinkCodes = "link-codes"
	NamespaceTools     = "tools"
	NamespaceSummaries = "summaries"
)

// Store is a namespaced key-value view. Values are opaque strings; callers
// marshal their own JSON.
type Store interface {
	// Get returns the value for key, with found=false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// List returns the keys matching the given prefix. An empty prefix
	// lists the whole namespace.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Provider hands out per-namespace store views over one backend.
type Provider interface {
	Namespace(name string) Store
	Close() error
}
