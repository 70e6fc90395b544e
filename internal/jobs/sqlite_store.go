package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jo-hoe/imagecaptioner/internal/common"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore records request lifecycles in a local sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		image_path TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		stage TEXT NOT NULL,
		error_message TEXT,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateJob(job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.ID == "" {
		return errors.New("job.ID is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Stage == "" {
		job.Stage = StageReceiving
	}

	_, err := s.db.Exec(
		`INSERT INTO jobs (id, image_path, mime_type, original_filename, size_bytes, stage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ImagePath, job.MimeType, job.OriginalFilename, job.SizeBytes, string(job.Stage), formatTime(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStage(id string, stage Stage, startedAt *time.Time) error {
	var err error
	if startedAt != nil {
		_, err = s.db.Exec(`UPDATE jobs SET stage = ?, started_at = ? WHERE id = ?`, string(stage), formatTime(*startedAt), id)
	} else {
		_, err = s.db.Exec(`UPDATE jobs SET stage = ? WHERE id = ?`, string(stage), id)
	}
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveResult(id string, completedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE jobs SET stage = ?, error_message = NULL, completed_at = ? WHERE id = ?`,
		string(StageCompleted), formatTime(completedAt), id,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveError(id string, errMsg string, completedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE jobs SET error_message = ?, stage = ?, completed_at = ? WHERE id = ?`,
		errMsg, string(StageFailed), formatTime(completedAt), id,
	)
	if err != nil {
		return fmt.Errorf("save error: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(`SELECT id, image_path, mime_type, original_filename, size_bytes, stage,
		error_message, created_at, started_at, completed_at
		FROM jobs WHERE id = ?`, id)

	var job Job
	var errMsg, started, completed sql.NullString
	var stage, created string

	if err := row.Scan(
		&job.ID,
		&job.ImagePath,
		&job.MimeType,
		&job.OriginalFilename,
		&job.SizeBytes,
		&stage,
		&errMsg,
		&created,
		&started,
		&completed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Stage = Stage(stage)
	if errMsg.Valid {
		v := errMsg.String
		job.ErrorMessage = &v
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		job.CreatedAt = t
	}
	job.StartedAt = parseOptionalTime(started)
	job.CompletedAt = parseOptionalTime(completed)
	return &job, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseOptionalTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
