// Package proxy relays extractor output to an HTTP response.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/vm-affekt/streamfetch/internal/app"
	"github.com/vm-affekt/streamfetch/internal/logging"
	"github.com/vm-affekt/streamfetch/internal/progress"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize = 32 * 1024
	DefaultBuffers   = 8

	progressLogInterval = 5 * time.Second
	// titleWait bounds how long the first chunk is held for the title lookup.
	titleWait = 2 * time.Second
)

// State is the position of one request in
// IDLE -> HEADERS_SENT -> STREAMING -> {COMPLETED | FAILED | CANCELLED}.
type State int

const (
	StateIdle = State(iota)
	StateHeadersSent
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeadersSent:
		return "headers_sent"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result describes how Serve ended. When HeadersSent is false nothing was
// written to the response and the caller still owns it.
type Result struct {
	State       State
	HeadersSent bool
	// Aborted is set when the connection was closed to truncate a failed
	// response. A failed response with headers sent and Aborted unset still
	// has to be aborted by the caller, e.g. with panic(http.ErrAbortHandler).
	Aborted bool
	Bytes   int64
	Err     *app.Error
}

type Proxy struct {
	chunkSize int
	buffers   int
}

func New(chunkSize, buffers int) *Proxy {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if buffers <= 0 {
		buffers = DefaultBuffers
	}
	return &Proxy{chunkSize: chunkSize, buffers: buffers}
}

type session struct {
	*Proxy

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.SugaredLogger

	req app.DownloadRequest
	job app.Job
	w   http.ResponseWriter
	rc  *http.ResponseController

	state   State
	relay   *relay
	file    *os.File
	counter *progress.Counter
	// lastProgress is when relay progress was last logged.
	lastProgress time.Time
}

// Serve streams the output of job to w. It owns job for the rest of the
// request: whatever the outcome, the extractor is reaped and its scratch
// files are removed before Serve returns.
func (p *Proxy) Serve(ctx context.Context, req app.DownloadRequest, job app.Job, w http.ResponseWriter) Result {
	ctx, log := logging.NewContextSL(ctx, "job_id", job.ID())
	s := &session{
		Proxy: p,
		ctx:   ctx,
		log:   log,
		req:   req,
		job:   job,
		w:     w,
		rc:    http.NewResponseController(w),
		state: StateIdle,

		lastProgress: time.Now(),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	return s.finish(s.run())
}

func (s *session) run() error {
	src, size, err := s.openSource()
	if err != nil {
		return err
	}
	s.counter = progress.NewCounter(max(size, 0))
	s.relay = startRelay(s.ctx, src, s.chunkSize, s.buffers)

	first, ok, err := s.next()
	if err != nil {
		return err
	}
	if !ok {
		if err := s.endOfSource(); err != nil {
			return err
		}
		return app.NewExtractionError(app.ReasonUnknown, "extractor produced no media")
	}

	setHeaders(s.w.Header(), s.req.Format, FileName(s.title(), s.req.Format), size)
	s.w.WriteHeader(http.StatusOK)
	s.state = StateHeadersSent

	for buf := first; ok; buf, ok, err = s.next() {
		if err := s.write(buf); err != nil {
			return err
		}
		s.state = StateStreaming
	}
	if err != nil {
		return err
	}
	return s.endOfSource()
}

// title is the video title if the lookup finishes within titleWait.
func (s *session) title() string {
	ctx, cancel := context.WithTimeout(s.ctx, titleWait)
	defer cancel()
	title := s.job.Title(ctx)
	if title == "" {
		s.log.Debug("Title is not known yet, using the default file name")
	}
	return title
}

// openSource returns the byte source and its size, -1 if unknown.
func (s *session) openSource() (src io.Reader, size int64, err error) {
	if s.job.Mode() == app.ModeDirectStream {
		if s.job.Stream() == nil {
			return nil, 0, fmt.Errorf("job %s has no stream", s.job.ID())
		}
		return s.job.Stream(), -1, nil
	}

	if err := s.job.Wait(); err != nil {
		return nil, 0, err
	}
	path := s.job.ArtifactPath()
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, app.NewError(app.KindArtifactMissing, "File not found after download").
			WithCause(fmt.Errorf("artifact missing after successful extraction: %w", err))
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open artifact: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("failed to stat artifact: %w", err)
	}
	s.file = f
	s.log.Infof("Streaming artifact %q of %d bytes", path, info.Size())
	return f, info.Size(), nil
}

// next returns the next chunk, ok=false on end of source.
func (s *session) next() (buf []byte, ok bool, err error) {
	select {
	case buf, ok = <-s.relay.chunks:
		if !ok {
			return nil, false, s.relay.err
		}
		return buf, true, nil
	case <-s.ctx.Done():
		return nil, false, s.ctx.Err()
	}
}

func (s *session) write(buf []byte) error {
	n, err := s.w.Write(buf)
	s.counter.Add(int64(n))
	s.relay.release(buf)
	if err == nil {
		err = s.rc.Flush()
	}
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		if clientGone(err) {
			return app.NewError(app.KindClientCancelled, "Download cancelled").WithCause(err)
		}
		return app.NewError(app.KindTransportFailure, "Response write failed").WithCause(err)
	}
	s.logProgress()
	return nil
}

// clientGone reports a write error caused by the peer closing the connection.
func clientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}

// logProgress reports percentage and ETA when the total size is known.
func (s *session) logProgress() {
	if s.counter.ContentLen() <= 0 || time.Since(s.lastProgress) < progressLogInterval {
		return
	}
	s.lastProgress = time.Now()
	eta, err := s.counter.EstimatedTime()
	if err != nil {
		return
	}
	s.log.Debugw("Relay progress",
		"percentage", int(s.counter.Percentage()),
		"bytes", s.counter.CurrentDownloaded(),
		"eta", eta.Round(time.Second),
	)
}

// endOfSource reports the extractor outcome once its output is exhausted.
func (s *session) endOfSource() error {
	if s.job.Mode() == app.ModeDirectStream {
		return s.job.Wait()
	}
	return nil
}

func (s *session) finish(runErr error) Result {
	res := Result{HeadersSent: s.state != StateIdle}

	appErr := app.AsError(s.ctx, runErr)
	if appErr != nil && s.ctx.Err() != nil && appErr.Kind != app.KindTimeout && appErr.Kind != app.KindClientCancelled {
		// the context ended first; whatever broke afterwards is a consequence
		if kind, _ := app.ContextKind(s.ctx); kind == app.KindTimeout {
			appErr = app.NewError(app.KindTimeout, "Download timed out").WithCause(runErr)
		} else {
			appErr = app.NewError(app.KindClientCancelled, "Download cancelled").WithCause(runErr)
		}
	}

	switch {
	case appErr == nil:
		s.state = StateCompleted
		s.job.SetStatus(app.StatusCompleted)
	case appErr.Kind == app.KindClientCancelled:
		s.state = StateCancelled
		s.job.SetStatus(app.StatusCancelled)
	default:
		s.state = StateFailed
		s.job.SetStatus(app.StatusFailed)
	}

	if s.state != StateCompleted {
		s.job.Cancel()
	}
	_ = s.job.Wait()
	s.cancel()
	if s.relay != nil {
		<-s.relay.done
	}
	if s.file != nil {
		_ = s.file.Close()
	}
	if err := s.job.Cleanup(); err != nil {
		s.log.Errorf("Failed to clean up job: %v", err)
	}

	if s.state == StateFailed && res.HeadersSent {
		res.Aborted = abortConnection(s.rc)
		if res.Aborted {
			s.log.Warnw("Response truncated after headers were sent", "err", appErr)
		} else {
			s.log.Warnw("Failed after headers were sent and the connection can't be hijacked", "err", appErr)
		}
	}

	if s.counter != nil {
		res.Bytes = s.counter.CurrentDownloaded()
	}
	res.State = s.state
	res.Err = appErr
	s.logOutcome(res)
	return res
}

func (s *session) logOutcome(res Result) {
	fields := []interface{}{
		"state", res.State.String(),
		"headers_sent", res.HeadersSent,
		"bytes", res.Bytes,
	}
	if s.counter != nil {
		fields = append(fields,
			"elapsed", s.counter.Elapsed().Round(time.Millisecond),
			"bytes_per_second", int64(s.counter.BytesPerSecond()),
		)
	}
	switch res.State {
	case StateCompleted:
		s.log.Infow("Download relayed", fields...)
	case StateCancelled:
		s.log.Infow("Download cancelled by client", fields...)
	default:
		s.log.Errorw("Download failed", append(fields, "err", res.Err)...)
	}
}

// abortConnection closes the underlying connection so the client sees a
// truncated body instead of a clean end of stream.
func abortConnection(rc *http.ResponseController) bool {
	conn, _, err := rc.Hijack()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
