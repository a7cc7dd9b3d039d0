// Package domain defines the core types and store contracts shared by the
// sync engine, the persistence layer, and the operator API. Implementations
// live under internal/store, internal/cache, and internal/blob.
package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts carries standard pagination parameters for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TradeStore is the persistence boundary for discovered trades. All methods
// must be safe for concurrent use; Insert must enforce digest uniqueness at
// the storage layer and return ErrAlreadyExists when a row for the same
// digest already landed.
type TradeStore interface {
	ExistsByDigest(ctx context.Context, digest string) (bool, error)
	Insert(ctx context.Context, trade Trade) (Trade, error)
	MostRecentDigest(ctx context.Context) (string, error)
	CountByVault(ctx context.Context, vaultID int64) (int64, error)
	ListByUser(ctx context.Context, userID int64, opts ListOpts) ([]Trade, error)
	ListByVault(ctx context.Context, vaultID int64, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// WalletStore is the read-only wallet directory consumed by the sync engine.
type WalletStore interface {
	ListAll(ctx context.Context) ([]WalletRecord, error)
	ListActive(ctx context.Context, sinceDays int) ([]WalletRecord, error)
}

// LockManager provides distributed locks so two processes cannot run the
// same sync task concurrently. Acquire returns ErrLockHeld when the lock is
// taken; the returned unlock function is safe to call multiple times.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// DigestCache is a fast-path dedup cache in front of the trade store. A miss
// is always answered by the store; cache failures must degrade to misses.
type DigestCache interface {
	Seen(ctx context.Context, digest string) (bool, error)
	MarkSeen(ctx context.Context, digest string) error
}

// BlobWriter uploads objects to cold storage. Put uploads in a single
// request; PutMultipart splits the payload into parts and suits large
// objects. partSize below the backend minimum is clamped up to it.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// Archiver moves aged trade rows to cold storage and reports how many
// records were archived.
type Archiver interface {
	ArchiveTrades(ctx context.Context, before time.Time) (int64, error)
}
