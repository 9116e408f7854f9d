package memory

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when a database URL is configured,
// otherwise the sqlite store at storePath.
func NewStore(ctx context.Context, databaseURL, storePath string, factLimit int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewSQLiteStoreWithLimit(storePath, factLimit)
	}
	return NewPostgresStoreWithLimit(ctx, databaseURL, factLimit)
}
