package service

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/benforcapita/play-app-sub000/config"
	"github.com/benforcapita/play-app-sub000/model"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

var (
	// ErrJobNotFound is returned when no job matches the token/owner pair.
	ErrJobNotFound = errors.New("job not found")
	// ErrTokenConflict is returned when a job token collides for an owner.
	ErrTokenConflict = errors.New("job token already exists")
	// ErrCharacterNotFound is returned when a linked character row is missing.
	ErrCharacterNotFound = errors.New("character not found")
)

// JobStore is the durable source of truth for extraction jobs, their section
// results and the characters produced from successful extractions. It runs on
// SQLite or Postgres behind database/sql.
type JobStore struct {
	db     *sql.DB
	driver string
}

// OpenStore connects to the configured database and applies the schema.
func OpenStore(cfg *config.DatabaseConfig) (*JobStore, error) {
	var driverName string
	switch cfg.Driver {
	case "sqlite", "":
		driverName = "sqlite"
	case "postgres":
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &JobStore{db: db, driver: cfg.Driver}

	if driverName == "sqlite" {
		// WAL keeps the worker's writes from blocking API reads.
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := db.Exec(pragma); execErr != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
			}
		}
	}

	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *JobStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *JobStore) applySchema(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == "postgres" {
		schema = schemaPostgres
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $N for the Postgres driver.
func (s *JobStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insertRow runs an INSERT and returns the generated id for either driver.
func (s *JobStore) insertRow(ctx context.Context, query string, args ...any) (int64, error) {
	if s.driver == "postgres" {
		var id int64
		err := s.db.QueryRowContext(ctx, s.rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// Insert persists a new job and assigns its storage identity.
func (s *JobStore) Insert(ctx context.Context, job *model.ExtractionJob) error {
	id, err := s.insertRow(ctx,
		`INSERT INTO extraction_jobs (
            job_token, owner_id, file_name, content_type, file_data_url,
            status, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.JobToken,
		job.OwnerID,
		job.FileName,
		job.ContentType,
		job.FileDataURL,
		string(job.Status),
		fmtTime(job.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenConflict
		}
		return fmt.Errorf("insert job: %w", err)
	}
	job.ID = id
	return nil
}

const jobColumns = `id, job_token, owner_id, file_name, content_type, file_data_url,
    status, created_at, started_at, completed_at, error_message, result_character_id`

// FindByToken loads a job (with its section results) scoped to an owner.
func (s *JobStore) FindByToken(ctx context.Context, token, ownerID string) (*model.ExtractionJob, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+jobColumns+` FROM extraction_jobs WHERE job_token = ? AND owner_id = ?`),
		token, ownerID)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadSectionResults(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetByID loads a job without owner scoping; used by the worker.
func (s *JobStore) GetByID(ctx context.Context, id int64) (*model.ExtractionJob, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+jobColumns+` FROM extraction_jobs WHERE id = ?`), id)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadSectionResults(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListPending returns pending jobs oldest first, bounding worker throughput.
func (s *JobStore) ListPending(ctx context.Context, limit int) ([]*model.ExtractionJob, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+jobColumns+` FROM extraction_jobs
         WHERE status = ? ORDER BY created_at ASC LIMIT ?`),
		string(model.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ExtractionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListByOwner returns an owner's jobs newest first, section results attached.
// File payloads are included; callers project them away as needed.
func (s *JobStore) ListByOwner(ctx context.Context, ownerID string) ([]*model.ExtractionJob, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+jobColumns+` FROM extraction_jobs
         WHERE owner_id = ? ORDER BY created_at DESC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ExtractionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if err := s.loadSectionResults(ctx, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// ClaimPending atomically transitions a job from Pending to InProgress and
// stamps started_at. Returns false when another worker already claimed it,
// making concurrent worker instances safe.
func (s *JobStore) ClaimPending(ctx context.Context, jobID int64, startedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE extraction_jobs SET status = ?, started_at = ?
         WHERE id = ? AND status = ?`),
		string(model.StatusInProgress), fmtTime(startedAt),
		jobID, string(model.StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job rows affected: %w", err)
	}
	return affected == 1, nil
}

// AppendSectionResults inserts one attempt's results as a single transaction.
func (s *JobStore) AppendSectionResults(ctx context.Context, jobID int64, results []model.SectionResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin section results tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := s.rebind(
		`INSERT INTO section_results (job_id, section_name, is_successful, error_message, processed_at)
         VALUES (?, ?, ?, ?, ?)`)
	for _, r := range results {
		if _, err := tx.ExecContext(ctx, stmt,
			jobID, r.SectionName, boolToInt(r.IsSuccessful),
			nullableString(r.ErrorMessage), fmtTime(r.ProcessedAt)); err != nil {
			return fmt.Errorf("insert section result %s: %w", r.SectionName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit section results: %w", err)
	}
	return nil
}

// MarkCompleted moves a job to its terminal Completed state and links the
// extracted character.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID, characterID int64, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE extraction_jobs SET status = ?, completed_at = ?, result_character_id = ?
         WHERE id = ?`),
		string(model.StatusCompleted), fmtTime(completedAt), characterID, jobID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed moves a job to its terminal Failed state.
func (s *JobStore) MarkFailed(ctx context.Context, jobID int64, message string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE extraction_jobs SET status = ?, completed_at = ?, error_message = ?
         WHERE id = ?`),
		string(model.StatusFailed), fmtTime(completedAt), message, jobID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// InsertCharacter persists a character produced by a successful extraction.
func (s *JobStore) InsertCharacter(ctx context.Context, ch *model.Character) error {
	sheetJSON, err := json.Marshal(ch.Sheet)
	if err != nil {
		return fmt.Errorf("marshal sheet: %w", err)
	}
	id, err := s.insertRow(ctx,
		`INSERT INTO characters (owner_id, name, class, species, sheet_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		ch.OwnerID, ch.Name, ch.Class, ch.Species, string(sheetJSON), fmtTime(ch.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert character: %w", err)
	}
	ch.ID = id
	return nil
}

// GetCharacter loads a character by id.
func (s *JobStore) GetCharacter(ctx context.Context, id int64) (*model.Character, error) {
	var (
		ch        model.Character
		sheetJSON string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, owner_id, name, class, species, sheet_json, created_at
         FROM characters WHERE id = ?`), id).
		Scan(&ch.ID, &ch.OwnerID, &ch.Name, &ch.Class, &ch.Species, &sheetJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCharacterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get character: %w", err)
	}
	var sheet model.CharacterSheet
	if err := json.Unmarshal([]byte(sheetJSON), &sheet); err != nil {
		return nil, fmt.Errorf("unmarshal sheet: %w", err)
	}
	ch.Sheet = &sheet
	ch.CreatedAt = parseTime(createdAt)
	return &ch, nil
}

func (s *JobStore) loadSectionResults(ctx context.Context, job *model.ExtractionJob) error {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, job_id, section_name, is_successful, error_message, processed_at
         FROM section_results WHERE job_id = ? ORDER BY id ASC`), job.ID)
	if err != nil {
		return fmt.Errorf("load section results: %w", err)
	}
	defer rows.Close()

	results := []model.SectionResult{}
	for rows.Next() {
		var (
			r           model.SectionResult
			success     int
			errMsg      sql.NullString
			processedAt string
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.SectionName, &success, &errMsg, &processedAt); err != nil {
			return err
		}
		r.IsSuccessful = success != 0
		if errMsg.Valid {
			r.ErrorMessage = &errMsg.String
		}
		r.ProcessedAt = parseTime(processedAt)
		results = append(results, r)
	}
	job.SectionResults = results
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.ExtractionJob, error) {
	var (
		job         model.ExtractionJob
		status      string
		createdAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
		errMsg      sql.NullString
		charID      sql.NullInt64
	)
	err := row.Scan(&job.ID, &job.JobToken, &job.OwnerID, &job.FileName,
		&job.ContentType, &job.FileDataURL, &status, &createdAt,
		&startedAt, &completedAt, &errMsg, &charID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Status = model.JobStatus(status)
	job.CreatedAt = parseTime(createdAt)
	if startedAt.Valid {
		t := parseTime(startedAt.String)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		job.CompletedAt = &t
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if charID.Valid {
		job.ResultCharacterID = &charID.Int64
	}
	job.SectionResults = []model.SectionResult{}
	return &job, nil
}

// timeLayout keeps the fractional second fixed-width so that TEXT ordering of
// created_at columns is chronological. RFC3339Nano trims trailing zeros and
// would sort "…:05Z" after "…:05.5Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
