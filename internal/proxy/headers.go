package proxy

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/vm-affekt/streamfetch/internal/app"
)

const (
	fallbackName  = "video"
	maxNameLength = 120
)

var unsafeNameChars = strings.NewReplacer(
	"..", "_",
	"/", "_",
	"\\", "_",
	"\x00", "",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// FileName derives the download name from the video title. The title is
// reduced to printable characters; an empty result falls back to "video".
func FileName(title string, f app.Format) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, title)
	name = unsafeNameChars.Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if r := []rune(name); len(r) > maxNameLength {
		name = strings.TrimSpace(string(r[:maxNameLength]))
	}
	name = strings.Trim(name, ". ")
	if name == "" {
		name = fallbackName
	}
	return name + "." + f.Extension()
}

// asciiName drops every non-ASCII rune for the plain filename parameter.
func asciiName(name string) string {
	out := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, name)
	out = strings.Join(strings.Fields(out), " ")
	if strings.HasPrefix(out, ".") || out == "" {
		return fallbackName + out
	}
	return out
}

// ContentDisposition builds an attachment header with a plain ASCII filename
// and an RFC 5987 filename* carrying the full name.
func ContentDisposition(name string) string {
	plain := asciiName(name)
	if plain == name {
		return fmt.Sprintf("attachment; filename=%q", plain)
	}
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", plain, encodeRFC5987(name))
}

func encodeRFC5987(s string) string {
	const attrChars = "!#$&+-.^_`|~"
	var b strings.Builder
	for _, c := range []byte(s) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', strings.IndexByte(attrChars, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// setHeaders sets every response header at once. size < 0 means unknown, in
// which case no Content-Length is sent and HTTP/1.1 falls back to chunked
// framing.
func setHeaders(h http.Header, f app.Format, fileName string, size int64) {
	h.Set("Content-Type", f.ContentType())
	h.Set("Content-Disposition", ContentDisposition(fileName))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Content-Type-Options", "nosniff")
	if size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	} else {
		h.Del("Content-Length")
	}
}
