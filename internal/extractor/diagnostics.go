package extractor

import (
	"strings"
	"sync"

	"github.com/vm-affekt/streamfetch/internal/app"
	"go.uber.org/zap"
)

const keptDiagnosticLines = 16

// diagnostics collects the stderr of one extractor process. It is used as
// exec.Cmd.Stderr, so os/exec copies into it from its own goroutine and the
// media relay is never blocked by it.
type diagnostics struct {
	log *zap.SugaredLogger

	mu        sync.Mutex
	partial   []byte
	lines     []string
	lastError string
}

func newDiagnostics(log *zap.SugaredLogger) *diagnostics {
	return &diagnostics{log: log}
}

func (d *diagnostics) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range p {
		if b == '\n' || b == '\r' {
			d.flushLocked()
			continue
		}
		d.partial = append(d.partial, b)
	}
	return len(p), nil
}

func (d *diagnostics) flushLocked() {
	line := strings.TrimSpace(string(d.partial))
	d.partial = d.partial[:0]
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "ERROR:") {
		d.lastError = line
		d.log.Warnw("Extractor error line", "line", line)
	} else {
		d.log.Debugw("Extractor output", "line", line)
	}
	if len(d.lines) == keptDiagnosticLines {
		copy(d.lines, d.lines[1:])
		d.lines = d.lines[:keptDiagnosticLines-1]
	}
	d.lines = append(d.lines, line)
}

// Last returns the most relevant diagnostic line: the last "ERROR:" line if
// there was one, else the last line written.
func (d *diagnostics) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushLocked()
	if d.lastError != "" {
		return d.lastError
	}
	if len(d.lines) == 0 {
		return ""
	}
	return d.lines[len(d.lines)-1]
}

var reasonMarkers = []struct {
	reason  app.Reason
	markers []string
}{
	{app.ReasonPrivate, []string{"private", "restricted access"}},
	{app.ReasonAgeRestricted, []string{"age-restricted", "age restricted", "confirm your age", "inappropriate for some users"}},
	{app.ReasonRateLimited, []string{"429", "too many requests", "rate limit", "rate-limit", "not a bot"}},
	{app.ReasonNotFound, []string{"not found", "404", "unavailable", "does not exist", "no longer available", "unsupported url"}},
}

// Classify maps an extractor diagnostic line to a failure reason.
func Classify(line string) app.Reason {
	lower := strings.ToLower(line)
	for _, rm := range reasonMarkers {
		for _, m := range rm.markers {
			if strings.Contains(lower, m) {
				return rm.reason
			}
		}
	}
	return app.ReasonUnknown
}
