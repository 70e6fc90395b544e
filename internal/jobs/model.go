package jobs

import (
	"errors"
	"time"
)

// Stage represents where a caption request is in its lifecycle.
// Requests move receiving → generating → completed|failed; the terminal stages are set while responding.
type Stage string

const (
	StageReceiving  Stage = "receiving"
	StageGenerating Stage = "generating"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// ErrJobNotFound is returned by Store.GetJob for unknown IDs.
var ErrJobNotFound = errors.New("job not found")

// Job describes a single caption request. Captions themselves are never stored.
type Job struct {
	ID               string     // UUIDv4
	ImagePath        string     // scratch path of the uploaded image; deleted after the response
	MimeType         string     // client-declared mime, may be empty
	OriginalFilename string     // as sent by the client
	SizeBytes        int64      // stored upload size
	Stage            Stage      // current stage
	ErrorMessage     *string    // server-side failure detail, never shown to clients
	CreatedAt        time.Time  // creation time
	StartedAt        *time.Time // when caption generation started
	CompletedAt      *time.Time // when finished (success or failure)
}

// Store defines persistence for Jobs and their lifecycle.
type Store interface {
	CreateJob(job *Job) error
	UpdateStage(id string, stage Stage, startedAt *time.Time) error
	SaveResult(id string, completedAt time.Time) error
	SaveError(id string, errMsg string, completedAt time.Time) error
	GetJob(id string) (*Job, error)
	Close() error
}

// NopStore keeps nothing. It is used when no request log is configured.
type NopStore struct{}

var _ Store = NopStore{}

func (NopStore) CreateJob(*Job) error                        { return nil }
func (NopStore) UpdateStage(string, Stage, *time.Time) error { return nil }
func (NopStore) SaveResult(string, time.Time) error          { return nil }
func (NopStore) SaveError(string, string, time.Time) error   { return nil }
func (NopStore) GetJob(string) (*Job, error)                 { return nil, ErrJobNotFound }
func (NopStore) Close() error                                { return nil }
