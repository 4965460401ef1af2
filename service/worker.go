package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"github.com/benforcapita/play-app-sub000/config"
	"github.com/benforcapita/play-app-sub000/model"
)

// Worker is the single background loop that claims pending extraction jobs
// and drives them to a terminal state. At most one job is processed per
// iteration, capping concurrent LLM calls at exactly one system-wide.
type Worker struct {
	store    *JobStore
	llm      SheetExtractor
	monitor  *RuntimeMonitor
	interval time.Duration
	backoff  time.Duration
	lockFile string
}

func NewWorker(store *JobStore, llm SheetExtractor, monitor *RuntimeMonitor, cfg *config.WorkerConfig) *Worker {
	return &Worker{
		store:    store,
		llm:      llm,
		monitor:  monitor,
		interval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		backoff:  time.Duration(cfg.ErrorBackoffSeconds) * time.Second,
		lockFile: cfg.LockFile,
	}
}

// Run executes the polling loop until the context is cancelled. When a lock
// file is configured, a second worker process on the host refuses to start
// instead of racing the first.
func (w *Worker) Run(ctx context.Context) error {
	if w.lockFile != "" {
		fl := flock.New(w.lockFile)
		locked, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("acquire worker lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("worker lock %s is held by another process", w.lockFile)
		}
		defer func() { _ = fl.Unlock() }()
	}

	slog.Info("extraction worker started",
		"poll_interval", w.interval,
		"error_backoff", w.backoff,
	)

	// Claimed jobs run detached from the shutdown context: an in-flight LLM
	// call drains to its own HTTP timeout and the outcome is always persisted,
	// so cancellation can never strand a job in InProgress. Shutdown is
	// honored between iterations only.
	jobCtx := context.WithoutCancel(ctx)

	wait := w.interval
	for {
		select {
		case <-ctx.Done():
			slog.Info("extraction worker stopping")
			return nil
		case <-time.After(wait):
		}

		if err := w.iterate(jobCtx); err != nil {
			slog.Error("worker iteration failed", "error", err)
			wait = w.backoff
			continue
		}
		wait = w.interval
	}
}

// iterate claims and fully processes at most one pending job.
func (w *Worker) iterate(ctx context.Context) error {
	jobs, err := w.store.ListPending(ctx, 1)
	if err != nil {
		return fmt.Errorf("list pending jobs: %w", err)
	}
	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// processJob drives one job through the state machine. Errors from the LLM
// call or response parsing are recorded on the job, never returned: only
// store failures propagate, since those mean outcomes cannot be persisted.
func (w *Worker) processJob(ctx context.Context, job *model.ExtractionJob) error {
	now := time.Now().UTC()
	claimed, err := w.store.ClaimPending(ctx, job.ID, now)
	if err != nil {
		return fmt.Errorf("claim job %s: %w", job.JobToken, err)
	}
	if !claimed {
		// Another worker instance won the claim.
		return nil
	}
	w.monitor.JobStarted(job.JobToken)

	slog.Info("processing extraction job",
		"job_token", job.JobToken,
		"file_name", job.FileName,
		"content_type", job.ContentType,
	)

	w.monitor.SubtaskStarted(job.JobToken, "llm_request")
	content, err := w.llm.ExtractSheet(ctx, job.FileName, job.ContentType, job.FileDataURL)
	if err != nil {
		w.monitor.SubtaskFinished(job.JobToken, "llm_request", false, err.Error())
		return w.failJob(ctx, job, err.Error())
	}
	w.monitor.SubtaskFinished(job.JobToken, "llm_request", true, "")

	root, err := ParseResponseObject(content)
	if err != nil {
		// Malformed top-level JSON: nothing per-section to record.
		return w.failJob(ctx, job, err.Error())
	}

	w.monitor.SubtaskStarted(job.JobToken, "parse_sections")
	sheet, results := RunSections(root)
	if err := w.store.AppendSectionResults(ctx, job.ID, results); err != nil {
		w.monitor.SubtaskFinished(job.JobToken, "parse_sections", false, err.Error())
		return fmt.Errorf("append section results for %s: %w", job.JobToken, err)
	}
	successful := 0
	for _, r := range results {
		if r.IsSuccessful {
			successful++
		}
	}
	w.monitor.SubtaskFinished(job.JobToken, "parse_sections", true,
		fmt.Sprintf("%d/%d sections", successful, len(results)))

	character := &model.Character{
		OwnerID:   job.OwnerID,
		Name:      "Unnamed",
		Class:     "",
		Species:   "",
		Sheet:     sheet,
		CreatedAt: time.Now().UTC(),
	}
	if info := sheet.CharacterInfo; info != nil {
		if info.Name != "" {
			character.Name = info.Name
		}
		character.Class = info.Class
		character.Species = info.Species
	}
	if err := w.store.InsertCharacter(ctx, character); err != nil {
		return fmt.Errorf("insert character for %s: %w", job.JobToken, err)
	}

	if err := w.store.MarkCompleted(ctx, job.ID, character.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark job %s completed: %w", job.JobToken, err)
	}
	w.monitor.JobCompleted(job.JobToken)

	slog.Info("extraction job completed",
		"job_token", job.JobToken,
		"character_id", character.ID,
		"successful_sections", successful,
		"total_sections", len(results),
	)
	return nil
}

func (w *Worker) failJob(ctx context.Context, job *model.ExtractionJob, message string) error {
	slog.Warn("extraction job failed",
		"job_token", job.JobToken,
		"error", message,
	)
	if err := w.store.MarkFailed(ctx, job.ID, message, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark job %s failed: %w", job.JobToken, err)
	}
	w.monitor.JobFailed(job.JobToken, message)
	return nil
}
