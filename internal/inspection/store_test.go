package inspection

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattjoyce/plantdata-gw/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleResult(id string) ResultEvent {
	return ResultEvent{
		InspectionID:     id,
		TagID:            "T1",
		Description:      "oil level check",
		InstallationCode: "HUA",
		RobotName:        "anymal",
		RawDataPath:      "raw/" + id + ".jpg",
		Timestamp:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStoreCreateThenExists(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	exists, err := s.Exists(ctx, "I1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected unseen inspection")
	}

	rec, err := s.Create(ctx, sampleResult("I1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" || rec.InspectionID != "I1" || rec.CreatedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", rec)
	}

	exists, err = s.Exists(ctx, "I1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected recorded inspection")
	}
}

func TestStoreCreateDuplicateFails(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, sampleResult("I1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, sampleResult("I1")); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}

func TestStoreGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, sampleResult("I1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, "I1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != created.ID || got.TagID != "T1" || got.RawDataPath != "raw/I1.jpg" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.ISARID != "" {
		t.Errorf("ISARID = %q, want empty", got.ISARID)
	}
	if !got.InspectedAt.Equal(created.InspectedAt) {
		t.Errorf("InspectedAt = %v, want %v", got.InspectedAt, created.InspectedAt)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestStoreCreateIfAbsentIsAtomic(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.CreateIfAbsent(ctx, sampleResult("I1"))
			if err != nil {
				t.Errorf("CreateIfAbsent: %v", err)
				return
			}
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := created.Load(); n != 1 {
		t.Fatalf("created %d records, want 1", n)
	}
}

func TestStoreRejectsInvalidEvent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.Create(context.Background(), ResultEvent{InspectionID: "I1"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestStoreRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"I1", "I2", "I3"} {
		if _, err := s.Create(ctx, sampleResult(id)); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	recs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].InspectionID != "I3" {
		t.Errorf("newest = %s, want I3", recs[0].InspectionID)
	}
}

func TestRenderRecord(t *testing.T) {
	rec := &Record{
		ID:           "rec-1",
		InspectionID: "I1",
		TagID:        "T1",
		Description:  "oil level check",
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	out := RenderRecord(rec)
	for _, want := range []string{"Inspection Record", "I1", "rec-1", "oil level check", "2026-01-02T03:04:05Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
