package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTable(t *testing.T) {
	for _, name := range []string{"search_shards", "docs.search_shards", "_t1"} {
		assert.NoError(t, ValidateTable(name), name)
	}
	for _, name := range []string{"", "1abc", "shards; DROP TABLE x", "a.b.c", "a-b"} {
		assert.Error(t, ValidateTable(name), name)
	}
}

func TestShardQuery(t *testing.T) {
	assert.Equal(t,
		"SELECT shard_key, category, format, payload FROM docs.shards ORDER BY position, shard_key",
		ShardQuery("docs.shards"))
}
