package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/vm-affekt/streamfetch/internal/app"
	"github.com/vm-affekt/streamfetch/internal/logging"
	"go.uber.org/multierr"
)

type process struct {
	name string
	cmd  *exec.Cmd
	diag *diagnostics
}

// job is an app.Job backed by extractor processes. procs are ordered from
// upstream to downstream; the first failing one decides the error.
type job struct {
	app.StatusField

	ctx    context.Context
	cancel context.CancelFunc

	id       string
	mode     app.OutputMode
	stream   io.Reader
	artifact string
	// scratchGlob matches the artifact and every partial file yt-dlp leaves next to it.
	scratchGlob string

	procs   []*process
	closers []io.Closer
	// streamErr reports a read failure of a source that is not a process.
	streamErr func() error

	title *titleLookup

	waitOnce    sync.Once
	waitErr     error
	cleanupOnce sync.Once
	cleanupErr  error
}

func newJob(ctx context.Context, id string, mode app.OutputMode) *job {
	ctx, cancel := context.WithCancel(ctx)
	return &job{
		ctx:    ctx,
		cancel: cancel,
		id:     id,
		mode:   mode,
	}
}

func (j *job) ID() string { return j.id }

func (j *job) Mode() app.OutputMode { return j.mode }

func (j *job) Stream() io.Reader { return j.stream }

func (j *job) ArtifactPath() string { return j.artifact }

func (j *job) Title(ctx context.Context) string {
	if j.title == nil {
		return ""
	}
	return j.title.wait(ctx)
}

func (j *job) Cancel() {
	j.cancel()
}

func (j *job) Wait() error {
	j.waitOnce.Do(func() {
		j.waitErr = j.wait()
	})
	return j.waitErr
}

func (j *job) wait() error {
	log := logging.FromContextS(j.ctx)

	var (
		failed     *process
		failureErr error
	)
	for _, p := range j.procs {
		err := p.cmd.Wait()
		if err != nil && failed == nil {
			failed, failureErr = p, err
		}
		log.Debugw("Extractor process exited", "process", p.name, "err", err)
	}
	for _, c := range j.closers {
		_ = c.Close()
	}

	if kind, done := app.ContextKind(j.ctx); done {
		for _, p := range j.procs {
			killGroup(p.cmd)
		}
		return contextError(kind, failureErr)
	}

	if failed != nil {
		line := failed.diag.Last()
		var exitErr *exec.ExitError
		if !errors.As(failureErr, &exitErr) {
			return app.NewExtractionError(app.ReasonUnknown, line).
				WithCause(fmt.Errorf("%s: %w", failed.name, failureErr))
		}
		return app.NewExtractionError(Classify(line), line).
			WithCause(fmt.Errorf("%s exited with code %d: %w", failed.name, exitErr.ExitCode(), failureErr))
	}
	if j.streamErr != nil {
		if err := j.streamErr(); err != nil {
			return app.NewExtractionError(Classify(err.Error()), err.Error()).WithCause(err)
		}
	}
	return nil
}

func contextError(kind app.ErrorKind, cause error) *app.Error {
	if kind == app.KindTimeout {
		return app.NewError(app.KindTimeout, "Download timed out").WithCause(cause)
	}
	return app.NewError(app.KindClientCancelled, "Download cancelled").WithCause(cause)
}

// Cleanup releases the job context and removes scratch files. Files that are
// already gone are not an error, so repeated calls are no-ops.
func (j *job) Cleanup() error {
	j.cleanupOnce.Do(func() {
		j.cancel()
		j.cleanupErr = j.removeScratch()
	})
	return j.cleanupErr
}

func (j *job) removeScratch() error {
	if j.scratchGlob == "" {
		return nil
	}
	log := logging.FromContextS(j.ctx)
	paths, err := filepath.Glob(j.scratchGlob)
	if err != nil {
		return fmt.Errorf("bad scratch pattern %q: %w", j.scratchGlob, err)
	}
	var errs error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, fmt.Errorf("failed to remove %q: %w", p, err))
			continue
		}
		log.Infof("Removed scratch file %q", p)
	}
	return errs
}

// errRecorder remembers the first read error other than io.EOF.
type errRecorder struct {
	r io.Reader

	mu  sync.Mutex
	err error
}

func (e *errRecorder) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		e.mu.Lock()
		if e.err == nil {
			e.err = err
		}
		e.mu.Unlock()
	}
	return n, err
}

func (e *errRecorder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
