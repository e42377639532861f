// Package cache stores expanded audience memberships between writes.
package cache

import "context"

// Store caches user ID sets by key. Implementations must be safe for
// concurrent use; a miss is reported with ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (members []string, ok bool, err error)
	Set(ctx context.Context, key string, members []string) error
	// Purge drops every entry owned by the store.
	Purge(ctx context.Context) error
}

func cloneMembers(members []string) []string {
	if members == nil {
		return nil
	}
	out := make([]string, len(members))
	copy(out, members)
	return out
}
