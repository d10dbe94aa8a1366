package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// storeTest exercises the Store contract against an implementation.
func storeTest(t *testing.T, open func(t *testing.T) Store) {
	t.Run("record and fetch recent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		for i, input := range []string{"discover resources", "scan staging", "analyze costs"} {
			_, err := s.RecordIntent(ctx, &IntentRecord{
				UserID:     "u-1",
				UserInput:  input,
				Category:   "compliance",
				Confidence: 0.55,
				Parameters: map[string]any{"n": float64(i)},
				CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatal(err)
			}
		}
		if _, err := s.RecordIntent(ctx, &IntentRecord{UserID: "u-2", UserInput: "other user"}); err != nil {
			t.Fatal(err)
		}

		recent, err := s.RecentByUser(ctx, "u-1", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(recent) != 2 {
			t.Fatalf("expected 2 records, got %d", len(recent))
		}
		// Most recent first.
		if recent[0].UserInput != "analyze costs" || recent[1].UserInput != "scan staging" {
			t.Errorf("wrong ordering: %q, %q", recent[0].UserInput, recent[1].UserInput)
		}
		if recent[0].Success != nil {
			t.Error("unresolved record must have nil Success")
		}
		if recent[0].Parameters["n"] != float64(2) {
			t.Errorf("parameters not preserved: %v", recent[0].Parameters)
		}
	})

	t.Run("assigns id and created_at", func(t *testing.T) {
		s := open(t)

		stored, err := s.RecordIntent(context.Background(), &IntentRecord{UserID: "u-1", UserInput: "hi"})
		if err != nil {
			t.Fatal(err)
		}
		if stored.ID == "" {
			t.Error("expected a generated id")
		}
		if stored.CreatedAt.IsZero() {
			t.Error("expected a creation timestamp")
		}
	})

	t.Run("update outcome", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		stored, err := s.RecordIntent(ctx, &IntentRecord{UserID: "u-1", UserInput: "provision"})
		if err != nil {
			t.Fatal(err)
		}

		updated, err := s.UpdateOutcome(ctx, stored.ID, false, "step 2 (run_compliance_scan): scanner unreachable")
		if err != nil {
			t.Fatal(err)
		}
		if updated.Success == nil || *updated.Success {
			t.Errorf("expected failure outcome, got %v", updated.Success)
		}
		if updated.ErrorMsg == "" || updated.ResolvedAt == nil {
			t.Errorf("outcome fields not set: %+v", updated)
		}

		if _, err := s.UpdateOutcome(ctx, "missing-id", true, ""); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("feedback references an existing intent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		stored, err := s.RecordIntent(ctx, &IntentRecord{UserID: "u-1", UserInput: "scan"})
		if err != nil {
			t.Fatal(err)
		}

		if err := s.SubmitFeedback(ctx, &Feedback{IntentID: stored.ID, Type: FeedbackHelpful}); err != nil {
			t.Fatal(err)
		}
		err = s.SubmitFeedback(ctx, &Feedback{IntentID: "missing-id", Type: FeedbackIncorrect})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for dangling feedback, got %v", err)
		}

		// Feedback must not mutate the intent it refers to.
		recent, err := s.RecentByUser(ctx, "u-1", 1)
		if err != nil {
			t.Fatal(err)
		}
		if recent[0].Success != nil || recent[0].ErrorMsg != "" {
			t.Errorf("feedback mutated the intent record: %+v", recent[0])
		}
	})

	t.Run("category stats", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		seed := []struct {
			category string
			success  bool
			resolve  bool
		}{
			{"compliance", true, true},
			{"compliance", false, true},
			{"cost", true, true},
			{"cost", false, false}, // unresolved, counts toward total only
		}
		for _, sd := range seed {
			stored, err := s.RecordIntent(ctx, &IntentRecord{
				UserID: "u-1", UserInput: "x", Category: sd.category,
			})
			if err != nil {
				t.Fatal(err)
			}
			if sd.resolve {
				if _, err := s.UpdateOutcome(ctx, stored.ID, sd.success, ""); err != nil {
					t.Fatal(err)
				}
			}
		}

		stats, err := s.CategoryStats(ctx, "u-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(stats) != 2 {
			t.Fatalf("expected 2 categories, got %d: %+v", len(stats), stats)
		}
		// Sorted by category name.
		if stats[0].Category != "compliance" || stats[1].Category != "cost" {
			t.Fatalf("unexpected categories: %+v", stats)
		}
		if stats[0].Total != 2 || stats[0].Succeeded != 1 || stats[0].SuccessRate != 0.5 {
			t.Errorf("compliance stats wrong: %+v", stats[0])
		}
		if stats[1].Total != 2 || stats[1].Succeeded != 1 {
			t.Errorf("cost stats wrong: %+v", stats[1])
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeTest(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTest(t, func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpenSQLite_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	if _, err := s.RecordIntent(context.Background(), &IntentRecord{UserID: "u-1", UserInput: "hi"}); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStore_FeedbackAccessor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stored, err := s.RecordIntent(ctx, &IntentRecord{UserID: "u-1", UserInput: "scan"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SubmitFeedback(ctx, &Feedback{IntentID: stored.ID, Type: FeedbackCorrection, Correction: "meant prod"}); err != nil {
		t.Fatal(err)
	}

	fbs := s.Feedback()
	if len(fbs) != 1 || fbs[0].Type != FeedbackCorrection {
		t.Fatalf("unexpected feedback: %+v", fbs)
	}
	if fbs[0].ID == "" || fbs[0].CreatedAt.IsZero() {
		t.Error("feedback id and timestamp must be assigned")
	}
}
