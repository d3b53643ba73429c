// Package filestore provides an evidence.Store backed by one JSON file per
// category in a local directory.
//
// Each category lives in <dir>/<category>.json. The document's own "version"
// field is the store version, so a document and its version are always
// replaced together by a single rename. Writers serialize on an exclusive
// flock of <dir>/<category>.lock, which also holds across processes sharing
// the directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sys/unix"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

var tracer = otel.Tracer("github.com/linnemanlabs/ksiwatch/internal/evidence/filestore")

const (
	docExt  = ".json"
	lockExt = ".lock"
)

// Store is a directory of category documents.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a Store rooted at it.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("filestore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Load reads the category document. A missing file is (nil, 0, nil).
func (s *Store) Load(ctx context.Context, category string) (_ []byte, _ int64, err error) {
	_, span := tracer.Start(ctx, "filestore.Load", trace.WithAttributes(
		attribute.String("ksiwatch.category", category),
	))
	defer func() { endSpan(span, err) }()

	if err := evidence.ValidateName(category); err != nil {
		return nil, 0, err
	}
	return s.read(category)
}

// Save replaces the category document when its stored version equals
// expectVersion. The written document's "version" field is set to
// expectVersion+1.
func (s *Store) Save(ctx context.Context, category string, expectVersion int64, doc []byte) (err error) {
	_, span := tracer.Start(ctx, "filestore.Save", trace.WithAttributes(
		attribute.String("ksiwatch.category", category),
		attribute.Int64("ksiwatch.expect_version", expectVersion),
	))
	defer func() { endSpan(span, err) }()

	if err := evidence.ValidateName(category); err != nil {
		return err
	}

	unlock, err := s.lock(category)
	if err != nil {
		return err
	}
	defer unlock()

	_, current, err := s.read(category)
	if err != nil {
		return err
	}
	if current != expectVersion {
		return evidence.ErrVersionConflict
	}

	stamped, err := sjson.SetBytes(doc, "version", expectVersion+1)
	if err != nil {
		return fmt.Errorf("stamp version: %w", err)
	}
	return s.writeAtomic(category, stamped)
}

// Categories lists every category with a document on disk.
func (s *Store) Categories(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read evidence dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, docExt) {
			continue
		}
		category := strings.TrimSuffix(name, docExt)
		if evidence.ValidateName(category) != nil {
			continue
		}
		out = append(out, category)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) read(category string) ([]byte, int64, error) {
	doc, err := os.ReadFile(s.path(category, docExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", category, err)
	}
	return doc, gjson.GetBytes(doc, "version").Int(), nil
}

// lock takes an exclusive flock on the category lock file.
func (s *Store) lock(category string) (func(), error) {
	f, err := os.OpenFile(s.path(category, lockExt), os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open lock: %w", err)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock %s: %w", category, err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

// writeAtomic writes doc to a temp file in the same directory, fsyncs it and
// renames it over the category file.
func (s *Store) writeAtomic(category string, doc []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+category+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(doc); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", category, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", category, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", category, err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", category, err)
	}
	if err := os.Rename(tmpName, s.path(category, docExt)); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", category, err)
	}

	// persist the rename itself
	if d, err := os.Open(s.dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func (s *Store) path(category, ext string) string {
	return filepath.Join(s.dir, category+ext)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, evidence.ErrVersionConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
