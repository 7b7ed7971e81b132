package proxy

import (
	"net/http"
	"testing"

	"github.com/vm-affekt/streamfetch/internal/app"
)

func TestFileName(t *testing.T) {
	type args struct {
		title  string
		format app.Format
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{
			name: "should_fall_back_on_empty_title",
			args: args{title: "", format: app.FormatVideo},
			want: "video.mp4",
		},
		{
			name: "should_use_audio_extension",
			args: args{title: "My Song", format: app.FormatAudio},
			want: "My Song.mp3",
		},
		{
			name: "should_collapse_whitespace",
			args: args{title: "  Hello \t  World  ", format: app.FormatVideo},
			want: "Hello World.mp4",
		},
		{
			name: "should_replace_unsafe_characters",
			args: args{title: `a/b: c? "d"`, format: app.FormatVideo},
			want: "a_b_ c_ _d_.mp4",
		},
		{
			name: "should_strip_path_traversal",
			args: args{title: "../../etc/passwd", format: app.FormatVideo},
			want: "____etc_passwd.mp4",
		},
		{
			name: "should_fall_back_on_control_characters_only",
			args: args{title: "\x01\x02\n", format: app.FormatAudio},
			want: "video.mp3",
		},
		{
			name: "should_keep_unicode",
			args: args{title: "Привет", format: app.FormatVideo},
			want: "Привет.mp4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(tt.args.title, tt.args.format); got != tt.want {
				t.Errorf("FileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{
			name:     "should_quote_ascii_name",
			fileName: "My Song.mp3",
			want:     `attachment; filename="My Song.mp3"`,
		},
		{
			name:     "should_add_rfc5987_name_for_non_ascii",
			fileName: "Привет.mp4",
			want:     `attachment; filename="video.mp4"; filename*=UTF-8''%D0%9F%D1%80%D0%B8%D0%B2%D0%B5%D1%82.mp4`,
		},
		{
			name:     "should_add_rfc5987_name_for_mixed",
			fileName: "Café ok.mp4",
			want:     `attachment; filename="Caf ok.mp4"; filename*=UTF-8''Caf%C3%A9%20ok.mp4`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentDisposition(tt.fileName); got != tt.want {
				t.Errorf("ContentDisposition() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Length", "10")
	setHeaders(h, app.FormatAudio, "a.mp3", -1)
	if got := h.Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := h.Get("Content-Length"); got != "" {
		t.Errorf("Content-Length = %q, want none for unknown size", got)
	}
	if got := h.Get("Cache-Control"); got != "no-cache, no-store, must-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}

	h = http.Header{}
	setHeaders(h, app.FormatVideo, "a.mp4", 42)
	if got := h.Get("Content-Length"); got != "42" {
		t.Errorf("Content-Length = %q, want 42", got)
	}
	if got := h.Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q", got)
	}
}
