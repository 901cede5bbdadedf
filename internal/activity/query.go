// Package activity keeps an in-memory journal of everything that happened
// to each form: every bus event becomes one Entry, queryable per form.
package activity

import "time"

// QueryOptions controls filtering and pagination for form activity queries.
type QueryOptions struct {
	Since    *time.Time
	Until    *time.Time
	Kinds    []string // filter to specific event kinds
	FieldKey string   // filter to one field
	Text     string   // case-insensitive substring of the summary
	Limit    int      // max results (default: 100, max: 500)
	Cursor   string   // cursor for pagination
}

// DefaultQueryOptions returns QueryOptions with sensible defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{Limit: 100}
}
