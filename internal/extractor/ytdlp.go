// Package extractor runs the external tools that turn a platform page URL
// into media bytes.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vm-affekt/streamfetch/internal/app"
	"github.com/vm-affekt/streamfetch/internal/logging"
	"go.uber.org/zap"
)

// ScratchPrefix starts the name of every temp-file artifact.
const ScratchPrefix = "streamfetch_"

const (
	defaultKillGrace    = 5 * time.Second
	defaultTitleTimeout = 15 * time.Second
)

type Config struct {
	YtDlpPath  string
	FFmpegPath string
	Mode       app.OutputMode
	// ScratchDir receives temp-file artifacts. Defaults to os.TempDir().
	ScratchDir  string
	Credentials Credentials
	// KillGrace is how long a process may take to exit after SIGTERM before it is killed.
	KillGrace time.Duration
	// ResolveTitle enables a metadata lookup used for the download file name.
	ResolveTitle bool
	TitleTimeout time.Duration
	// Env is appended to the environment of every spawned process.
	Env []string
}

// YtDlp invokes the yt-dlp command line tool.
type YtDlp struct {
	cfg Config
}

func NewYtDlp(cfg Config) *YtDlp {
	if cfg.YtDlpPath == "" {
		cfg.YtDlpPath = "yt-dlp"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = defaultKillGrace
	}
	if cfg.TitleTimeout <= 0 {
		cfg.TitleTimeout = defaultTitleTimeout
	}
	cfg.Env = append([]string{"PYTHONUNBUFFERED=1", "PYTHONIOENCODING=UTF-8"}, cfg.Env...)
	return &YtDlp{cfg: cfg}
}

// Invoke starts the extraction. The processes live until ctx is done, the
// job is cancelled, or they finish on their own.
func (y *YtDlp) Invoke(ctx context.Context, req app.DownloadRequest) (app.Job, error) {
	id := uuid.NewString()
	ctx, log := logging.NewContextSL(ctx,
		"job_id", id,
		"format", req.Format.String(),
		"output_mode", y.cfg.Mode.String(),
	)
	j := newJob(ctx, id, y.cfg.Mode)
	if y.cfg.ResolveTitle {
		j.title = y.lookupTitle(j.ctx, req.SourceURL)
	}

	var err error
	if y.cfg.Mode == app.ModeTempFile {
		err = y.startTempFile(j, req)
	} else {
		err = y.startDirect(j, req)
	}
	if err != nil {
		j.Cancel()
		_ = j.Wait()
		_ = j.Cleanup()
		return nil, err
	}
	log.Infof("Extraction started with %d process(es)", len(j.procs))
	return j, nil
}

func (y *YtDlp) startTempFile(j *job, req app.DownloadRequest) error {
	base := filepath.Join(y.cfg.ScratchDir, scratchName())
	j.artifact = base + "." + req.Format.Extension()
	j.scratchGlob = base + ".*"

	cmd, diag := y.command(j.ctx, "yt-dlp", y.cfg.YtDlpPath, ytdlpArgs(req, j.mode, base+".%(ext)s", y.cfg.Credentials))
	if err := y.start(j, "yt-dlp", cmd, diag); err != nil {
		return err
	}
	logging.FromContextS(j.ctx).Infof("yt-dlp writes to scratch file %q", j.artifact)
	return nil
}

func (y *YtDlp) startDirect(j *job, req app.DownloadRequest) error {
	args := ytdlpArgs(req, j.mode, "-", y.cfg.Credentials)
	ytdlp, ytdlpDiag := y.command(j.ctx, "yt-dlp", y.cfg.YtDlpPath, args)

	if req.Format != app.FormatAudio {
		stdout, err := ytdlp.StdoutPipe()
		if err != nil {
			return fmt.Errorf("failed to get yt-dlp stdout pipe: %w", err)
		}
		if err := y.start(j, "yt-dlp", ytdlp, ytdlpDiag); err != nil {
			return err
		}
		j.stream = stdout
		return nil
	}

	// yt-dlp | ffmpeg. The parent closes both pipe ends once the children own
	// them, so a dead ffmpeg turns into EPIPE for yt-dlp instead of a stall.
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create pipe: %w", err)
	}
	defer pr.Close()
	defer pw.Close()
	ytdlp.Stdout = pw

	ffmpeg, ffmpegDiag := y.command(j.ctx, "ffmpeg", y.cfg.FFmpegPath, ffmpegMP3Args())
	ffmpeg.Stdin = pr
	stdout, err := ffmpeg.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg stdout pipe: %w", err)
	}
	if err := y.start(j, "yt-dlp", ytdlp, ytdlpDiag); err != nil {
		return err
	}
	if err := y.start(j, "ffmpeg", ffmpeg, ffmpegDiag); err != nil {
		return err
	}
	j.stream = stdout
	return nil
}

func (y *YtDlp) command(ctx context.Context, name, path string, args []string) (*exec.Cmd, *diagnostics) {
	log := logging.FromContextS(ctx).With(zap.String("process", name))
	diag := newDiagnostics(log)

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), y.cfg.Env...)
	cmd.Stderr = diag
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		log.Info("Terminating extractor process...")
		return terminate(cmd)
	}
	cmd.WaitDelay = y.cfg.KillGrace
	return cmd, diag
}

func (y *YtDlp) start(j *job, name string, cmd *exec.Cmd, diag *diagnostics) error {
	if err := cmd.Start(); err != nil {
		return app.NewError(app.KindLaunchFailure, "Extractor is not available").
			WithCause(fmt.Errorf("failed to start %s (%s): %w", name, cmd.Path, err))
	}
	j.procs = append(j.procs, &process{name: name, cmd: cmd, diag: diag})
	return nil
}

func scratchName() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d_%s", ScratchPrefix, time.Now().UnixMilli(), suffix)
}

// titleLookup fetches the title of a video concurrently with the download.
type titleLookup struct {
	done  chan struct{}
	title string
}

func (t *titleLookup) wait(ctx context.Context) string {
	select {
	case <-t.done:
		return t.title
	case <-ctx.Done():
		return ""
	}
}

func (y *YtDlp) lookupTitle(ctx context.Context, sourceURL string) *titleLookup {
	t := &titleLookup{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		log := logging.FromContextS(ctx)
		ctx, cancel := context.WithTimeout(ctx, y.cfg.TitleTimeout)
		defer cancel()

		cmd, diag := y.command(ctx, "yt-dlp-title", y.cfg.YtDlpPath, titleArgs(sourceURL, y.cfg.Credentials))
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			log.Warnf("Failed to look up title: %v (%s)", err, diag.Last())
			return
		}
		t.title = firstLine(out.String())
		log.Infof("Got title %q", t.title)
	}()
	return t
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
