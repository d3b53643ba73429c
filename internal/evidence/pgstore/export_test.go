package pgstore

import "context"

// Truncate empties the rollup table. Test helper.
func Truncate(ctx context.Context, s *Store) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE evidence_rollups`)
	return err
}
