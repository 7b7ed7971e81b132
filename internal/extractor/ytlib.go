package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kkdai/youtube/v2"
	"github.com/vm-affekt/streamfetch/internal/app"
	"github.com/vm-affekt/streamfetch/internal/logging"
	"go.uber.org/zap"
)

const (
	videoMP4PatternMime = "video/mp4"
	audioMP4PatternMime = "audio/mp4"
)

// Library extracts YouTube media in-process with kkdai/youtube. It always
// works in direct-stream mode; audio is converted to mp3 by ffmpeg.
type Library struct {
	ffmpegPath string
	killGrace  time.Duration
	debugMode  bool
	httpClient *http.Client
}

func NewLibrary(ffmpegPath string, killGrace time.Duration, cookie string, debugMode bool) *Library {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}
	client := &http.Client{Transport: http.DefaultTransport}
	if cookie != "" {
		client.Transport = &cookieTransport{cookie: cookie, next: http.DefaultTransport}
	}
	return &Library{
		ffmpegPath: ffmpegPath,
		killGrace:  killGrace,
		debugMode:  debugMode,
		httpClient: client,
	}
}

func (l *Library) Invoke(ctx context.Context, req app.DownloadRequest) (app.Job, error) {
	if req.Platform != app.PlatformYouTube {
		return nil, app.NewError(app.KindUnsupportedPlatform, "Invalid or unsupported platform URL").
			WithCause(fmt.Errorf("library engine supports only youtube, got %s", req.Platform))
	}
	if _, err := YouTubeVideoID(req.SourceURL); err != nil {
		return nil, app.NewError(app.KindInvalidInput, "Invalid YouTube URL").WithCause(err)
	}
	id := uuid.NewString()
	ctx = logging.NewContextS(ctx,
		zap.String("job_id", id),
		zap.String("video_link", req.SourceURL),
		zap.String("format", req.Format.String()),
	)
	j := newJob(ctx, id, app.ModeDirectStream)

	formatType := videoMP4PatternMime
	if req.Format == app.FormatAudio {
		formatType = audioMP4PatternMime
	}
	title, stream, err := l.downloadStream(j.ctx, req.SourceURL, formatType)
	if err != nil {
		j.Cancel()
		return nil, err
	}
	j.title = &titleLookup{done: closedChan(), title: title}
	rec := &errRecorder{r: stream}
	j.closers = append(j.closers, stream)
	j.streamErr = rec.Err

	if req.Format != app.FormatAudio {
		j.stream = rec
		return j, nil
	}
	mp3Stream, err := l.convertMP4ToMP3(j, rec)
	if err != nil {
		j.Cancel()
		_ = j.Wait()
		return nil, err
	}
	j.stream = mp3Stream
	return j, nil
}

func (l *Library) downloadStream(ctx context.Context, link string, formatType string) (title string, stream io.ReadCloser, err error) {
	log := logging.FromContextS(ctx)
	ytClient := &youtube.Client{
		Debug:      l.debugMode,
		HTTPClient: l.httpClient,
	}

	link = transformLink(ctx, link)
	video, err := ytClient.GetVideoContext(ctx, link)
	if err != nil {
		return "", nil, app.NewExtractionError(Classify(err.Error()), err.Error()).
			WithCause(fmt.Errorf("failed to get video by link: %w", err))
	}
	log.Infof("Got video metadata with %d formats", len(video.Formats))
	formats := video.Formats.WithAudioChannels().Type(formatType)
	if len(formats) == 0 {
		return "", nil, app.NewExtractionError(app.ReasonNotFound, "no format found").
			WithCause(fmt.Errorf("no video format found for type pattern %q", formatType))
	}
	format := &formats[0]
	log.Infow("Found video format for pattern "+formatType,
		"format_mime_type", format.MimeType,
		"format_quality", format.Quality,
		"format_itag", format.ItagNo,
	)
	stream, contentLen, err := ytClient.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", nil, app.NewExtractionError(Classify(err.Error()), err.Error()).
			WithCause(fmt.Errorf("failed to get video stream: %w", err))
	}
	log.Infof("Started downloading stream. Content length is %d", contentLen)
	return video.Title, stream, nil
}

func (l *Library) convertMP4ToMP3(j *job, mp4Stream io.Reader) (io.Reader, error) {
	log := logging.FromContextS(j.ctx).With(zap.String("process", "ffmpeg"))
	log.Info("Converting from MP4 to MP3 via ffmpeg...")
	diag := newDiagnostics(log)

	ffmpegCmd := exec.CommandContext(j.ctx, l.ffmpegPath, ffmpegMP3Args()...)
	ffmpegCmd.Env = os.Environ()
	ffmpegCmd.Stdin = mp4Stream
	ffmpegCmd.Stderr = diag
	setProcessGroup(ffmpegCmd)
	ffmpegCmd.Cancel = func() error { return terminate(ffmpegCmd) }
	ffmpegCmd.WaitDelay = l.killGrace

	mp3Stream, err := ffmpegCmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get ffmpeg stdout pipe: %w", err)
	}
	if err := ffmpegCmd.Start(); err != nil {
		return nil, app.NewError(app.KindLaunchFailure, "Extractor is not available").
			WithCause(fmt.Errorf("failed to start ffmpeg cmd: %w", err))
	}
	j.procs = append(j.procs, &process{name: "ffmpeg", cmd: ffmpegCmd, diag: diag})
	log.Info("ffmpeg converter started!")
	return mp3Stream, nil
}

// transformLink extracts and returns video id if link has '/live/' path.
// Youtube downloader lib has bug: it doesn't recognize '/live/' links.
func transformLink(ctx context.Context, link string) string {
	const livePath = "/live/"
	log := logging.FromContextS(ctx)
	parsedURL, err := url.Parse(link)
	if err != nil {
		log.Errorf("extractor.transformLink: failed to parse url: %v", err)
		return link
	}
	path := parsedURL.Path
	if !strings.HasPrefix(path, livePath) {
		return link
	}
	startIdx := len(livePath)
	if len(path) == startIdx {
		log.Errorf("extractor.transformLink: no video_id after %s", livePath)
		return link
	}
	return path[startIdx:]
}

// YouTubeVideoID returns the id the library engine would download.
func YouTubeVideoID(link string) (string, error) {
	return youtube.ExtractVideoID(transformLink(context.Background(), link))
}

type cookieTransport struct {
	cookie string
	next   http.RoundTripper
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Cookie", t.cookie)
	return t.next.RoundTrip(req)
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
