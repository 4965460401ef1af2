package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/benforcapita/play-app-sub000/config"
	"github.com/benforcapita/play-app-sub000/model"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	store, err := OpenStore(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "jobs.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestJob(owner string) *model.ExtractionJob {
	job := model.NewExtractionJob()
	job.JobToken = model.NewJobToken()
	job.OwnerID = owner
	job.FileName = "sheet.png"
	job.ContentType = "image/png"
	job.FileDataURL = "data:image/png;base64,aGVsbG8="
	return job
}

func TestStoreInsertAndFindByToken(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newTestJob("alice")
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if job.ID == 0 {
		t.Error("Expected assigned id")
	}

	found, err := store.FindByToken(ctx, job.JobToken, "alice")
	if err != nil {
		t.Fatalf("FindByToken failed: %v", err)
	}
	if found.JobToken != job.JobToken || found.FileName != "sheet.png" || found.Status != model.StatusPending {
		t.Errorf("Unexpected job: %+v", found)
	}
	if !found.CreatedAt.Equal(job.CreatedAt.Truncate(time.Nanosecond)) {
		t.Errorf("CreatedAt mismatch: %v vs %v", found.CreatedAt, job.CreatedAt)
	}
}

func TestStoreFindByTokenOwnerScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newTestJob("alice")
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, err := store.FindByToken(ctx, job.JobToken, "bob"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound for wrong owner, got %v", err)
	}
	if _, err := store.FindByToken(ctx, "0123456789abcdef", "alice"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound for unknown token, got %v", err)
	}
}

func TestStoreTokenConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newTestJob("alice")
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	dup := newTestJob("alice")
	dup.JobToken = job.JobToken
	if err := store.Insert(ctx, dup); !errors.Is(err, ErrTokenConflict) {
		t.Errorf("Expected ErrTokenConflict, got %v", err)
	}

	// Same token under a different owner is allowed.
	other := newTestJob("bob")
	other.JobToken = job.JobToken
	if err := store.Insert(ctx, other); err != nil {
		t.Errorf("Expected cross-owner insert to succeed, got %v", err)
	}
}

func TestStoreListPendingOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	var tokens []string
	for i := 0; i < 3; i++ {
		job := newTestJob("alice")
		job.CreatedAt = base.Add(time.Duration(2-i) * time.Minute)
		if err := store.Insert(ctx, job); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		tokens = append(tokens, job.JobToken)
	}

	pending, err := store.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("Expected 3 pending jobs, got %d", len(pending))
	}
	// Inserted newest first, so the list must come back reversed.
	if pending[0].JobToken != tokens[2] || pending[2].JobToken != tokens[0] {
		t.Errorf("Expected oldest-first ordering, got %v, %v, %v",
			pending[0].JobToken, pending[1].JobToken, pending[2].JobToken)
	}

	limited, err := store.ListPending(ctx, 1)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(limited) != 1 || limited[0].JobToken != tokens[2] {
		t.Errorf("Expected oldest job only, got %+v", limited)
	}
}

func TestStoreListPendingSubsecondOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A whole-second timestamp has no fractional digits; the encoding must
	// still sort it before a later time in the same second.
	base := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)

	older := newTestJob("alice")
	older.CreatedAt = base
	newer := newTestJob("alice")
	newer.CreatedAt = base.Add(500 * time.Millisecond)

	if err := store.Insert(ctx, newer); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, older); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	pending, err := store.ListPending(ctx, 1)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].JobToken != older.JobToken {
		t.Errorf("Expected the whole-second job first, got %+v", pending)
	}
	if !pending[0].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt mismatch: %v", pending[0].CreatedAt)
	}
}

func TestStoreClaimPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newTestJob("alice")
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	claimed, err := store.ClaimPending(ctx, job.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if !claimed {
		t.Fatal("Expected first claim to succeed")
	}

	// A second claim must lose: the job is no longer Pending.
	claimed, err = store.ClaimPending(ctx, job.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimPending failed: %v", err)
	}
	if claimed {
		t.Error("Expected second claim to fail")
	}

	found, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if found.Status != model.StatusInProgress {
		t.Errorf("Expected InProgress, got %s", found.Status)
	}
	if found.StartedAt == nil {
		t.Error("Expected StartedAt to be set")
	}

	pending, err := store.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending jobs after claim, got %d", len(pending))
	}
}

func TestStoreAppendSectionResults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newTestJob("alice")
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	errMsg := "Section not found in response"
	results := []model.SectionResult{
		{SectionName: "CharacterInfo", IsSuccessful: true, ProcessedAt: time.Now().UTC()},
		{SectionName: "Combat", ErrorMessage: &errMsg, ProcessedAt: time.Now().UTC()},
	}
	if err := store.AppendSectionResults(ctx, job.ID, results); err != nil {
		t.Fatalf("AppendSectionResults failed: %v", err)
	}

	found, err := store.FindByToken(ctx, job.JobToken, "alice")
	if err != nil {
		t.Fatalf("FindByToken failed: %v", err)
	}
	if len(found.SectionResults) != 2 {
		t.Fatalf("Expected 2 section results, got %d", len(found.SectionResults))
	}
	if found.SectionResults[0].SectionName != "CharacterInfo" || !found.SectionResults[0].IsSuccessful {
		t.Errorf("Unexpected first result: %+v", found.SectionResults[0])
	}
	second := found.SectionResults[1]
	if second.IsSuccessful || second.ErrorMessage == nil || *second.ErrorMessage != errMsg {
		t.Errorf("Unexpected second result: %+v", second)
	}
}

func TestStoreMarkCompletedLinksCharacter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newTestJob("alice")
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	ch := &model.Character{
		OwnerID:   "alice",
		Name:      "Tordek",
		Class:     "Fighter",
		Species:   "Dwarf",
		Sheet:     &model.CharacterSheet{CharacterInfo: &model.CharacterInfo{Name: "Tordek"}},
		CreatedAt: time.Now().UTC(),
	}
	if err := store.InsertCharacter(ctx, ch); err != nil {
		t.Fatalf("InsertCharacter failed: %v", err)
	}
	if ch.ID == 0 {
		t.Fatal("Expected assigned character id")
	}

	if err := store.MarkCompleted(ctx, job.ID, ch.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	found, err := store.FindByToken(ctx, job.JobToken, "alice")
	if err != nil {
		t.Fatalf("FindByToken failed: %v", err)
	}
	if found.Status != model.StatusCompleted {
		t.Errorf("Expected Completed, got %s", found.Status)
	}
	if found.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
	if found.ResultCharacterID == nil || *found.ResultCharacterID != ch.ID {
		t.Errorf("Expected character link %d, got %v", ch.ID, found.ResultCharacterID)
	}

	loaded, err := store.GetCharacter(ctx, ch.ID)
	if err != nil {
		t.Fatalf("GetCharacter failed: %v", err)
	}
	if loaded.Name != "Tordek" || loaded.Sheet == nil || loaded.Sheet.CharacterInfo == nil {
		t.Errorf("Unexpected character: %+v", loaded)
	}
}

func TestStoreMarkFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := newTestJob("alice")
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.MarkFailed(ctx, job.ID, "llm request failed with status 502", time.Now().UTC()); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	found, err := store.FindByToken(ctx, job.JobToken, "alice")
	if err != nil {
		t.Fatalf("FindByToken failed: %v", err)
	}
	if found.Status != model.StatusFailed {
		t.Errorf("Expected Failed, got %s", found.Status)
	}
	if found.ErrorMessage == nil || *found.ErrorMessage != "llm request failed with status 502" {
		t.Errorf("Unexpected error message: %v", found.ErrorMessage)
	}
	if found.CompletedAt == nil {
		t.Error("Expected CompletedAt on failure")
	}
}

func TestStoreListByOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 2; i++ {
		job := newTestJob("alice")
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Insert(ctx, job); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := store.Insert(ctx, newTestJob("bob")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	jobs, err := store.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs for alice, got %d", len(jobs))
	}
	if jobs[0].CreatedAt.Before(jobs[1].CreatedAt) {
		t.Error("Expected newest-first ordering")
	}
}

func TestStoreUnsupportedDriver(t *testing.T) {
	if _, err := OpenStore(&config.DatabaseConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}
