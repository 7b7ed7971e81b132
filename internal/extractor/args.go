package extractor

import (
	"github.com/vm-affekt/streamfetch/internal/app"
)

const audioBitrate = "192K"

// Credentials are optional login data forwarded to yt-dlp to get past bot checks.
type Credentials struct {
	// Cookie is a raw "name=value; name2=value2" header.
	Cookie string
	// CookiesFile is a Netscape formatted cookie jar.
	CookiesFile string
}

func (c Credentials) args() []string {
	var args []string
	if c.CookiesFile != "" {
		args = append(args, "--cookies", c.CookiesFile)
	}
	if c.Cookie != "" {
		args = append(args, "--add-header", "Cookie:"+c.Cookie)
	}
	return args
}

// ytdlpArgs builds the download command line. output is "-" for stdout or an
// output template. In direct-stream mode audio is not post-processed by
// yt-dlp because it can't transcode to stdout; ffmpeg does it.
func ytdlpArgs(req app.DownloadRequest, mode app.OutputMode, output string, creds Credentials) []string {
	var args []string
	switch {
	case req.Format == app.FormatAudio && mode == app.ModeTempFile:
		args = []string{"-f", "bestaudio/best", "-x", "--audio-format", "mp3", "--audio-quality", audioBitrate}
	case req.Format == app.FormatAudio:
		args = []string{"-f", "bestaudio/best"}
	default:
		args = []string{"-f", "best[ext=mp4]/best"}
	}
	args = append(args,
		"-o", output,
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--newline",
	)
	args = append(args, creds.args()...)
	return append(args, "--", req.SourceURL)
}

func titleArgs(sourceURL string, creds Credentials) []string {
	args := []string{"--print", "title", "--skip-download", "--no-playlist", "--no-warnings"}
	args = append(args, creds.args()...)
	return append(args, "--", sourceURL)
}

// ffmpegMP3Args converts whatever arrives on stdin to mp3 on stdout.
func ffmpegMP3Args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-f", "mp3",
		"-b:a", "192k",
		"pipe:1",
	}
}
