package evidence

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is returned by Store.Save when the stored version no
// longer matches the version the caller read.
var ErrVersionConflict = errors.New("evidence: document version conflict")

// ErrInvalidName is returned for empty or unsafe category/component names.
var ErrInvalidName = errors.New("evidence: invalid name")

// MalformedResultError reports a component whose payload or counters cannot
// be serialized or summed. Prior state for the component is left untouched.
type MalformedResultError struct {
	Component string
	Err       error
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("malformed result for component %q: %v", e.Component, e.Err)
}

func (e *MalformedResultError) Unwrap() error { return e.Err }

// MergeConflictError is the read-modify-write transaction losing a race
// against another writer. The Aggregator retries these internally and only
// surfaces one once its attempts are exhausted.
type MergeConflictError struct {
	Category  string
	Component string
	Attempts  int
	Err       error
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %s/%s after %d attempt(s): %v", e.Category, e.Component, e.Attempts, e.Err)
}

func (e *MergeConflictError) Unwrap() error { return e.Err }
