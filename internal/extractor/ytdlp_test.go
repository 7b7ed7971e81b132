//go:build !windows

package extractor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/vm-affekt/streamfetch/internal/app"
)

// writeScript creates an executable shell script standing in for yt-dlp or ffmpeg.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// tempFileScript writes "media" to the -o template with %(ext)s replaced by ext.
func tempFileScript(ext string) string {
	return `while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; fi
  shift
done
f=$(printf '%s' "$out" | sed 's/%(ext)s/` + ext + `/')
printf 'media' > "$out.part"
printf 'media' > "$f"`
}

var videoReq = app.DownloadRequest{
	SourceURL: "https://www.youtube.com/watch?v=abc",
	Format:    app.FormatVideo,
	Platform:  app.PlatformYouTube,
}

func asAppError(t *testing.T, err error) *app.Error {
	t.Helper()
	var appErr *app.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v (%T) is not *app.Error", err, err)
	}
	return appErr
}

func TestYtDlp_Invoke_directStream(t *testing.T) {
	y := NewYtDlp(Config{
		YtDlpPath: writeScript(t, "yt-dlp", `printf 'hello media'`),
	})
	j, err := y.Invoke(context.Background(), videoReq)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	defer j.Cleanup()

	if j.Mode() != app.ModeDirectStream {
		t.Errorf("Mode() = %v", j.Mode())
	}
	if j.ArtifactPath() != "" {
		t.Errorf("ArtifactPath() = %q, want empty", j.ArtifactPath())
	}
	got, err := io.ReadAll(j.Stream())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello media" {
		t.Errorf("stream = %q", got)
	}
	if err := j.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
	if err := j.Wait(); err != nil {
		t.Errorf("second Wait() error = %v", err)
	}
}

func TestYtDlp_Invoke_audioPipeline(t *testing.T) {
	y := NewYtDlp(Config{
		YtDlpPath:  writeScript(t, "yt-dlp", `printf 'raw-audio'`),
		FFmpegPath: writeScript(t, "ffmpeg", `exec cat`),
	})
	req := videoReq
	req.Format = app.FormatAudio
	j, err := y.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	defer j.Cleanup()
	got, err := io.ReadAll(j.Stream())
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "raw-audio" {
		t.Errorf("stream = %q", got)
	}
	if err := j.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestYtDlp_Invoke_extractionFailure(t *testing.T) {
	y := NewYtDlp(Config{
		YtDlpPath: writeScript(t, "yt-dlp", `echo "[youtube] abc: Downloading webpage" >&2
echo "ERROR: [youtube] abc: Private video. Sign in if you've been granted access to this video" >&2
exit 1`),
	})
	j, err := y.Invoke(context.Background(), videoReq)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	defer j.Cleanup()
	_, _ = io.Copy(io.Discard, j.Stream())

	appErr := asAppError(t, j.Wait())
	if appErr.Kind != app.KindExtractionFailure || appErr.Reason != app.ReasonPrivate {
		t.Errorf("Wait() = %v, want private extraction failure", appErr)
	}
	if !strings.Contains(appErr.Diagnostic, "Private video") {
		t.Errorf("Diagnostic = %q", appErr.Diagnostic)
	}
}

func TestYtDlp_Invoke_launchFailure(t *testing.T) {
	y := NewYtDlp(Config{
		YtDlpPath: filepath.Join(t.TempDir(), "missing-yt-dlp"),
	})
	_, err := y.Invoke(context.Background(), videoReq)
	if appErr := asAppError(t, err); appErr.Kind != app.KindLaunchFailure {
		t.Errorf("Invoke() kind = %v, want %v", appErr.Kind, app.KindLaunchFailure)
	}
}

func TestYtDlp_Invoke_tempFile(t *testing.T) {
	scratch := t.TempDir()
	y := NewYtDlp(Config{
		YtDlpPath:  writeScript(t, "yt-dlp", tempFileScript("mp4")),
		Mode:       app.ModeTempFile,
		ScratchDir: scratch,
	})
	j, err := y.Invoke(context.Background(), videoReq)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if j.Stream() != nil {
		t.Error("Stream() must be nil in temp-file mode")
	}
	if err := j.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	artifact := j.ArtifactPath()
	if filepath.Dir(artifact) != scratch || !strings.HasPrefix(filepath.Base(artifact), ScratchPrefix) || !strings.HasSuffix(artifact, ".mp4") {
		t.Errorf("ArtifactPath() = %q", artifact)
	}
	data, err := os.ReadFile(artifact)
	if err != nil || string(data) != "media" {
		t.Fatalf("artifact content = %q, err = %v", data, err)
	}

	if err := j.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if err := j.Cleanup(); err != nil {
		t.Fatalf("second Cleanup() error = %v", err)
	}
	left, _ := filepath.Glob(filepath.Join(scratch, ScratchPrefix+"*"))
	if len(left) != 0 {
		t.Errorf("scratch files left after cleanup: %v", left)
	}
}

func TestYtDlp_Invoke_uniqueArtifacts(t *testing.T) {
	y := NewYtDlp(Config{
		YtDlpPath:  writeScript(t, "yt-dlp", tempFileScript("mp4")),
		Mode:       app.ModeTempFile,
		ScratchDir: t.TempDir(),
	})
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		j, err := y.Invoke(context.Background(), videoReq)
		if err != nil {
			t.Fatal(err)
		}
		_ = j.Wait()
		if seen[j.ArtifactPath()] {
			t.Errorf("artifact %q reused", j.ArtifactPath())
		}
		seen[j.ArtifactPath()] = true
		_ = j.Cleanup()
	}
}

func TestYtDlp_Invoke_title(t *testing.T) {
	y := NewYtDlp(Config{
		YtDlpPath: writeScript(t, "yt-dlp", `if [ "$1" = "--print" ]; then echo "My Title"; exit 0; fi
printf 'media'`),
		ResolveTitle: true,
	})
	j, err := y.Invoke(context.Background(), videoReq)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Cleanup()
	_, _ = io.Copy(io.Discard, j.Stream())
	_ = j.Wait()
	if got := j.Title(context.Background()); got != "My Title" {
		t.Errorf("Title() = %q, want %q", got, "My Title")
	}
}

func TestYtDlp_Invoke_cancelKillsProcess(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	y := NewYtDlp(Config{
		YtDlpPath: writeScript(t, "yt-dlp", `echo $$ > `+pidFile+`
exec yes media`),
		KillGrace: time.Second,
	})
	j, err := y.Invoke(context.Background(), videoReq)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Cleanup()

	buf := make([]byte, 1024)
	if _, err := io.ReadFull(j.Stream(), buf); err != nil {
		t.Fatalf("failed to read stream: %v", err)
	}
	raw, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		t.Fatal(err)
	}

	j.Cancel()
	done := make(chan error, 1)
	go func() { done <- j.Wait() }()
	select {
	case err := <-done:
		if appErr := asAppError(t, err); appErr.Kind != app.KindClientCancelled {
			t.Errorf("Wait() kind = %v, want %v", appErr.Kind, app.KindClientCancelled)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Wait() did not return after Cancel()")
	}
	if err := syscall.Kill(pid, 0); !errors.Is(err, syscall.ESRCH) {
		t.Errorf("process %d still exists after cancel (kill err = %v)", pid, err)
	}
}

func TestYtDlp_Invoke_timeout(t *testing.T) {
	y := NewYtDlp(Config{
		YtDlpPath: writeScript(t, "yt-dlp", `exec sleep 30`),
		Mode:      app.ModeTempFile,
		KillGrace: time.Second,
	})
	ctx, cancel := context.WithTimeoutCause(context.Background(), 200*time.Millisecond, app.ErrTimeout)
	defer cancel()
	j, err := y.Invoke(ctx, videoReq)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Cleanup()

	start := time.Now()
	appErr := asAppError(t, j.Wait())
	if appErr.Kind != app.KindTimeout {
		t.Errorf("Wait() kind = %v, want %v", appErr.Kind, app.KindTimeout)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Wait() took %v", elapsed)
	}
}
