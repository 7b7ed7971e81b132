package platform

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vm-affekt/streamfetch/internal/logging"
)

const maxRedirects = 5

// DefaultShortHosts are hosts whose links only redirect to the real page.
var DefaultShortHosts = []string{"fb.watch", "vm.tiktok.com", "vt.tiktok.com"}

// Resolver expands short links by following their redirects.
type Resolver struct {
	client     *http.Client
	shortHosts []string
}

func NewResolver(timeout time.Duration, shortHosts []string) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Resolver{client: client, shortHosts: shortHosts}
}

// Resolve returns the final URL link redirects to. Links that are not on a
// short host are returned unchanged without any network access.
func (r *Resolver) Resolve(ctx context.Context, link string) (string, error) {
	u, err := Parse(link)
	if err != nil {
		return "", err
	}
	if !r.isShort(u.Host) {
		return link, nil
	}
	log := logging.FromContextS(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0")
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to follow redirects of %q: %w", link, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.Request == nil || resp.Request.URL == nil {
		return "", errors.New("response has no final request")
	}
	final := resp.Request.URL.String()
	log.Infow("Short link resolved", "short_link", link, "resolved_link", final, "status", resp.StatusCode)
	return final, nil
}

func (r *Resolver) isShort(host string) bool {
	host = strings.ToLower(host)
	for _, h := range r.shortHosts {
		if strings.EqualFold(host, h) {
			return true
		}
	}
	return false
}
