package query

import (
	"fmt"
	"strings"
)

// PaginateQuery appends id based paging clauses to query, which must end in a
// parenthesized WHERE clause, and returns the query with its extended args.
//
// For example, with a cursor and limit:
//
//	SELECT * FROM t WHERE (state = $1) AND id > $2 ORDER BY id ASC LIMIT $3
func PaginateQuery(query string, args []interface{}, cursor Cursor, limit uint64, direction Ordering) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(query)

	comparison, order := ">", "ASC"
	if direction == Descending {
		comparison, order = "<", "DESC"
	}

	if len(cursor) > 0 {
		args = append(args, cursor.ToUint64())
		fmt.Fprintf(&sb, " AND id %s $%d", comparison, len(args))
	}

	sb.WriteString(" ORDER BY id " + order)

	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args
}

// DefaultPaginationHandlerWithLimit applies paging options over ascending
// defaults, rejecting limits above the provided maximum
func DefaultPaginationHandlerWithLimit(limit uint64, opts ...Option) (*QueryOptions, error) {
	req := QueryOptions{
		Limit:     limit,
		SortBy:    Ascending,
		Supported: CanLimitResults | CanSortBy | CanQueryByCursor,
	}
	if err := req.Apply(opts...); err != nil {
		return nil, ErrQueryNotSupported
	}

	if req.Limit > limit {
		return nil, ErrQueryNotSupported
	}

	return &req, nil
}
