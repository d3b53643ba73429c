// Package storetest holds a conformance suite every evidence.Store
// implementation runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

// Run exercises the Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) evidence.Store) {
	t.Helper()

	t.Run("LoadMissing", func(t *testing.T) {
		s := newStore(t)
		doc, v, err := s.Load(context.Background(), "absent")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if doc != nil || v != 0 {
			t.Fatalf("Load missing = (%q, %d), want (nil, 0)", doc, v)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		want := []byte(`{"category":"storage","version":1,"components":{}}`)
		if err := s.Save(ctx, "storage", 0, want); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, v, err := s.Load(ctx, "storage")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if string(got) != string(want) {
			t.Errorf("doc = %s, want %s", got, want)
		}
		if v != 1 {
			t.Errorf("version = %d, want 1", v)
		}

		next := []byte(`{"category":"storage","version":2,"components":{"s3":{}}}`)
		if err := s.Save(ctx, "storage", 1, next); err != nil {
			t.Fatalf("second Save: %v", err)
		}
		got, v, _ = s.Load(ctx, "storage")
		if string(got) != string(next) || v != 2 {
			t.Errorf("after second Save = (%s, %d)", got, v)
		}
	})

	t.Run("StaleVersionConflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := []byte(`{"category":"iam","version":1,"components":{}}`)
		if err := s.Save(ctx, "iam", 0, first); err != nil {
			t.Fatalf("Save: %v", err)
		}

		err := s.Save(ctx, "iam", 0, []byte(`{"stale":true}`))
		if !errors.Is(err, evidence.ErrVersionConflict) {
			t.Fatalf("Save with stale version err = %v, want ErrVersionConflict", err)
		}
		err = s.Save(ctx, "iam", 5, []byte(`{"ahead":true}`))
		if !errors.Is(err, evidence.ErrVersionConflict) {
			t.Fatalf("Save with future version err = %v, want ErrVersionConflict", err)
		}

		got, v, _ := s.Load(ctx, "iam")
		if string(got) != string(first) || v != 1 {
			t.Errorf("conflicting Save changed state: (%s, %d)", got, v)
		}
	})

	t.Run("ExpectExistingOnMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.Save(context.Background(), "never", 3, []byte(`{}`))
		if !errors.Is(err, evidence.ErrVersionConflict) {
			t.Fatalf("err = %v, want ErrVersionConflict", err)
		}
	})

	t.Run("Categories", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, c := range []string{"storage", "KSI-IAM-MFA", "iam"} {
			if err := s.Save(ctx, c, 0, []byte(`{}`)); err != nil {
				t.Fatalf("Save %s: %v", c, err)
			}
		}
		got, err := s.Categories(ctx)
		if err != nil {
			t.Fatalf("Categories: %v", err)
		}
		want := []string{"KSI-IAM-MFA", "iam", "storage"}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("Categories = %v, want %v", got, want)
		}
	})

	t.Run("ConcurrentSavesOneWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const n = 8

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Save(ctx, "race", 0, []byte(fmt.Sprintf(`{"writer":%d}`, i)))
				switch {
				case err == nil:
					mu.Lock()
					wins++
					mu.Unlock()
				case !errors.Is(err, evidence.ErrVersionConflict):
					t.Errorf("Save: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Fatalf("wins = %d, want exactly 1", wins)
		}
		_, v, _ := s.Load(ctx, "race")
		if v != 1 {
			t.Errorf("version = %d, want 1", v)
		}
	})

	t.Run("AggregatorEndToEnd", func(t *testing.T) {
		s := newStore(t)
		agg := evidence.NewAggregator(s, nil, evidence.Hooks{}, 20)
		ctx := context.Background()

		var wg sync.WaitGroup
		for _, name := range []string{"s3_encryption", "rds_encryption", "ebs_encryption"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r := &evidence.Result{Component: name, Summary: map[string]float64{"total": 1, "encrypted": 1}}
				if err := agg.Merge(ctx, "storage", r); err != nil {
					t.Errorf("Merge %s: %v", name, err)
				}
			}()
		}
		wg.Wait()

		sum, ok, err := agg.Summary(ctx, "storage")
		if err != nil || !ok {
			t.Fatalf("Summary: ok=%v err=%v", ok, err)
		}
		if sum.Components != 3 || sum.Totals["total"] != 3 {
			t.Errorf("summary = %+v, want 3 components totalling 3", sum)
		}
		if sum.Version != 3 {
			t.Errorf("version = %d, want 3", sum.Version)
		}
	})
}
