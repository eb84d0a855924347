package store

import (
	"context"
	"fmt"
	"sort"
)

// DependentFileIDs returns the files of the repository that currently hold
// an edge into any of fileIDs, excluding fileIDs themselves. These files'
// edges must be recomputed when fileIDs change.
func (s *Store) DependentFileIDs(ctx context.Context, repoID string, fileIDs []int64) ([]int64, error) {
	touched := make(map[int64]bool, len(fileIDs))
	for _, id := range fileIDs {
		touched[id] = true
	}
	seen := make(map[int64]bool)
	for _, chunk := range chunkInt64s(fileIDs, maxInClause) {
		args := append([]any{repoID}, int64sToArgs(chunk)...)
		rows, err := s.db.QueryContext(ctx,
			"SELECT DISTINCT from_file_id FROM edges WHERE repository_id = ? AND to_file_id IN ("+
				placeholderList(len(chunk))+")",
			args...)
		if err != nil {
			return nil, fmt.Errorf("dependent files: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("dependent files: scan: %w", err)
			}
			if !touched[id] {
				seen[id] = true
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("dependent files: rows: %w", err)
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
