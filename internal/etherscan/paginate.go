package etherscan

import (
	"context"
	"fmt"
)

// Paginate requests pages 1, 2, ... of pageSize records from fetch and returns
// all of them. It stops at the first page holding fewer than pageSize records.
func Paginate[T any](
	ctx context.Context,
	pageSize int,
	fetch func(ctx context.Context, page int) ([]T, error),
) ([]T, error) {
	if pageSize < 1 {
		return nil, fmt.Errorf("page size must be positive: %d", pageSize)
	}

	var all []T
	for page := 1; ; page++ {
		records, err := fetch(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}

		all = append(all, records...)

		if len(records) < pageSize {
			return all, nil
		}
	}
}
