// Package platform classifies source URLs and expands platform short links.
package platform

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vm-affekt/streamfetch/internal/app"
)

var hostsByPlatform = []struct {
	platform app.Platform
	hosts    []string
}{
	{app.PlatformYouTube, []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}},
	{app.PlatformFacebook, []string{"facebook.com", "fb.com", "fb.watch"}},
	{app.PlatformTikTok, []string{"tiktok.com"}},
}

// Parse normalizes link into an absolute http(s) URL. A missing scheme is
// treated as https.
func Parse(link string) (*url.URL, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("empty link")
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("only http and https URLs are allowed, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("URL has no host")
	}
	return u, nil
}

// Detect returns the platform of link. The returned error is an *app.Error of
// KindInvalidInput or KindUnsupportedPlatform.
func Detect(link string) (app.Platform, error) {
	u, err := Parse(link)
	if err != nil {
		return app.PlatformUnknown, app.NewError(app.KindInvalidInput, "Invalid video URL").WithCause(err)
	}
	if p := platformOfHost(u.Hostname()); p != app.PlatformUnknown {
		return p, nil
	}
	return app.PlatformUnknown, app.
		NewError(app.KindUnsupportedPlatform, "Invalid or unsupported platform URL").
		WithCause(fmt.Errorf("host %q is not supported", u.Hostname()))
}

func platformOfHost(host string) app.Platform {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, entry := range hostsByPlatform {
		for _, h := range entry.hosts {
			if hostMatches(host, h) {
				return entry.platform
			}
		}
	}
	return app.PlatformUnknown
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
