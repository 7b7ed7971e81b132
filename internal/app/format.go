package app

import (
	"fmt"
	"strings"
)

// Format is the media kind requested by the client.
type Format int

const (
	FormatVideo = Format(iota)
	FormatAudio
)

// ParseFormat maps the "format" query parameter. Only "mp3" selects audio,
// everything else (including empty) is video.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "mp3") {
		return FormatAudio
	}
	return FormatVideo
}

func (f Format) ContentType() string {
	if f == FormatAudio {
		return "audio/mpeg"
	}
	return "video/mp4"
}

func (f Format) Extension() string {
	if f == FormatAudio {
		return "mp3"
	}
	return "mp4"
}

func (f Format) String() string {
	if f == FormatAudio {
		return "audio"
	}
	return "video"
}

// Platform is a supported origin site.
type Platform int

const (
	PlatformUnknown = Platform(iota)
	PlatformYouTube
	PlatformFacebook
	PlatformTikTok
)

func (p Platform) String() string {
	switch p {
	case PlatformYouTube:
		return "youtube"
	case PlatformFacebook:
		return "facebook"
	case PlatformTikTok:
		return "tiktok"
	}
	return "unknown"
}

// OutputMode selects how the extractor hands media over.
type OutputMode int

const (
	// ModeDirectStream reads media from the extractor's stdout.
	ModeDirectStream = OutputMode(iota)
	// ModeTempFile lets the extractor write a scratch file that is streamed afterwards.
	ModeTempFile
)

func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stream":
		return ModeDirectStream, nil
	case "tempfile":
		return ModeTempFile, nil
	}
	return ModeDirectStream, fmt.Errorf("unknown output mode %q", s)
}

func (m OutputMode) String() string {
	if m == ModeTempFile {
		return "tempfile"
	}
	return "stream"
}

// DownloadRequest is built from an incoming request after its URL was validated.
type DownloadRequest struct {
	SourceURL string
	Format    Format
	Platform  Platform
}
