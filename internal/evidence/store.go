package evidence

import "context"

// Store is the persistence interface for category rollup documents.
//
// Save must replace the whole document atomically and only when the stored
// version still equals expectVersion (0 meaning "absent"); otherwise it
// returns ErrVersionConflict and leaves the stored document untouched.
type Store interface {
	Load(ctx context.Context, category string) (doc []byte, version int64, err error)
	Save(ctx context.Context, category string, expectVersion int64, doc []byte) error
	Categories(ctx context.Context) ([]string, error)
}
