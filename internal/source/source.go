// Package source fetches raw shard payloads for the store: from a directory
// of generated search-data files or from a PostgreSQL table. A Watcher
// reports changes under a directory so the caller can reload.
package source

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
)

// Source produces the complete, ordered list of shard payloads.
type Source interface {
	Fetch(ctx context.Context) ([]shard.Payload, error)
	Name() string
}
