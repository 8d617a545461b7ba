package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCDRRepositoryCreateAndGetByCallID(t *testing.T) {
	repo := NewMemoryCDRRepository()
	ctx := context.Background()

	cdr := &CDR{CallID: "call-1", CallerNumber: "1000", CalledNumber: "2000", StartTime: time.Now()}
	if err := repo.Create(ctx, cdr); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cdr.ID == "" {
		t.Fatalf("expected Create to assign an ID")
	}

	got, err := repo.GetByCallID(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetByCallID: %v", err)
	}
	if got == nil || got.CallerNumber != "1000" {
		t.Fatalf("GetByCallID returned %+v", got)
	}
}

func TestMemoryCDRRepositoryUpdate(t *testing.T) {
	repo := NewMemoryCDRRepository()
	ctx := context.Background()

	cdr := &CDR{CallID: "call-2", CallerNumber: "1000", CalledNumber: "2000"}
	_ = repo.Create(ctx, cdr)

	cdr.Disposition = "answered"
	cdr.BillDuration = 42
	if err := repo.Update(ctx, cdr); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := repo.Get(ctx, cdr.ID)
	if got.Disposition != "answered" || got.BillDuration != 42 {
		t.Fatalf("Update did not persist: %+v", got)
	}
}

func TestMemoryCDRRepositoryQueryFilter(t *testing.T) {
	repo := NewMemoryCDRRepository()
	ctx := context.Background()

	_ = repo.Create(ctx, &CDR{CallID: "a", CallerNumber: "1000", Disposition: "answered"})
	_ = repo.Create(ctx, &CDR{CallID: "b", CallerNumber: "1000", Disposition: "failed"})
	_ = repo.Create(ctx, &CDR{CallID: "c", CallerNumber: "2000", Disposition: "answered"})

	rows, err := repo.Query(ctx, CDRFilter{CallerNumber: "1000", Disposition: "answered"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 || rows[0].CallID != "a" {
		t.Fatalf("Query returned %+v", rows)
	}

	count, err := repo.Count(ctx, CDRFilter{CallerNumber: "1000"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("Count = %d, want 2", count)
	}
}

func TestMemoryCDRRepositoryDelete(t *testing.T) {
	repo := NewMemoryCDRRepository()
	ctx := context.Background()

	cdr := &CDR{CallID: "call-3"}
	_ = repo.Create(ctx, cdr)

	if err := repo.Delete(ctx, cdr.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, _ := repo.Get(ctx, cdr.ID)
	if got != nil {
		t.Fatalf("expected nil after delete, got %+v", got)
	}
}
