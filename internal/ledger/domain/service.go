package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Post inserts at most one entry per (source_type, source_id). The
	// second return value is true when the entry already existed and the
	// call was a no-op.
	Post(ctx context.Context, posting Posting) (*LedgerEntry, bool, error)

	// Reverse appends an offsetting entry for a previously posted entry.
	Reverse(ctx context.Context, entryID snowflake.ID, reason string) (*LedgerEntry, error)

	FindBySource(ctx context.Context, sourceType string, sourceID snowflake.ID) (*LedgerEntry, error)
	List(ctx context.Context, filter ListFilter) ([]*LedgerEntry, error)
}
