package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// ShardFetcher is satisfied by *postgres.Client.
type ShardFetcher interface {
	FetchShards(ctx context.Context) ([]postgres.ShardRow, error)
}

// Postgres loads shards stored as rows, in (position, shard_key) order.
type Postgres struct {
	db ShardFetcher
}

func NewPostgres(db ShardFetcher) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Fetch(ctx context.Context) ([]shard.Payload, error) {
	rows, err := p.db.FetchShards(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching shard rows: %w", err)
	}
	payloads := make([]shard.Payload, len(rows))
	for i, r := range rows {
		format := shard.Format(strings.ToLower(strings.TrimSpace(r.Format)))
		if format == "" {
			format = shard.FormatDoxygen
		}
		payloads[i] = shard.Payload{
			Key:      r.Key,
			Category: shard.ParseCategory(r.Category, shard.CategoryFromName(r.Key)),
			Format:   format,
			Data:     r.Payload,
		}
	}
	return payloads, nil
}
