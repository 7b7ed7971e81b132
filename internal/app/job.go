package app

import (
	"context"
	"io"
	"sync/atomic"
)

type Status int32

const (
	StatusRunning = Status(iota)
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// StatusField is an atomically updated Status, embeddable by Job implementations.
type StatusField struct {
	v atomic.Int32
}

func (f *StatusField) Status() Status {
	return Status(f.v.Load())
}

func (f *StatusField) SetStatus(s Status) {
	f.v.Store(int32(s))
}

// Job is one running extraction. It is owned by a single request.
type Job interface {
	ID() string
	// Title waits for the video title until ctx is done and returns "" when
	// none is known by then.
	Title(ctx context.Context) string
	Mode() OutputMode
	// Stream returns media bytes in ModeDirectStream, nil otherwise.
	Stream() io.Reader
	// ArtifactPath returns the expected scratch file in ModeTempFile.
	ArtifactPath() string
	// Wait blocks until every extractor process exited and was reaped.
	// It may be called many times and always returns the same error.
	Wait() error
	// Cancel asks the extractor to stop. Safe to call at any time.
	Cancel()
	// Cleanup removes scratch files. Safe to call many times.
	Cleanup() error

	Status() Status
	SetStatus(s Status)
}

type Invoker interface {
	Invoke(ctx context.Context, req DownloadRequest) (Job, error)
}
