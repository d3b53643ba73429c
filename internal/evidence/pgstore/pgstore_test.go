package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
	"github.com/linnemanlabs/ksiwatch/internal/evidence/pgstore"
	"github.com/linnemanlabs/ksiwatch/internal/evidence/storetest"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("KSIWATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("KSIWATCH_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := pgstore.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// truncate empties the table so every subtest starts from an empty store.
func truncate(t *testing.T, s *pgstore.Store) {
	t.Helper()
	if err := pgstore.Truncate(context.Background(), s); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestStore_Conformance(t *testing.T) {
	s := openStore(t)
	storetest.Run(t, func(t *testing.T) evidence.Store {
		truncate(t, s)
		return s
	})
}

func TestStore_PreservesDocumentBytes(t *testing.T) {
	s := openStore(t)
	truncate(t, s)
	ctx := context.Background()

	// key order and spacing that jsonb would normalize away
	doc := []byte(`{"category":"storage","version":1,"components":{"z":{ "summary" : {"total":1}},"a":{}}}`)
	if err := s.Save(ctx, "storage", 0, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _, err := s.Load(ctx, "storage")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("document = %s, want %s", got, doc)
	}
}
