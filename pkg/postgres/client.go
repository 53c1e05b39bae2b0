// Package postgres opens the lib/pq connection used by the table-backed
// shard source and reads shard rows from it.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	_ "github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ShardRow is one stored search-data shard.
type ShardRow struct {
	Key      string
	Category string
	Format   string
	Payload  []byte
}

type Client struct {
	db    *sql.DB
	table string
}

// New opens a pool and pings it. The configured table name is validated
// because it is interpolated into the shard query.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	if err := ValidateTable(cfg.Table); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{db: db, table: cfg.Table}, nil
}

// ValidateTable rejects anything but a plain or schema-qualified identifier.
func ValidateTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid shard table name %q", name)
	}
	return nil
}

// ShardQuery is the statement FetchShards runs against table.
func ShardQuery(table string) string {
	return fmt.Sprintf("SELECT shard_key, category, format, payload FROM %s ORDER BY position, shard_key", table)
}

// FetchShards returns every stored shard in load order.
func (c *Client) FetchShards(ctx context.Context) ([]ShardRow, error) {
	rows, err := c.db.QueryContext(ctx, ShardQuery(c.table))
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.table, err)
	}
	defer rows.Close()

	var out []ShardRow
	for rows.Next() {
		var r ShardRow
		if err := rows.Scan(&r.Key, &r.Category, &r.Format, &r.Payload); err != nil {
			return nil, fmt.Errorf("scanning shard row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shard rows: %w", err)
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.db.Close()
}
