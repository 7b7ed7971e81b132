// Package scratch removes temp-file artifacts that outlived their request,
// e.g. after a crash.
package scratch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vm-affekt/streamfetch/internal/logging"
	"go.uber.org/multierr"
)

type Sweeper struct {
	dir    string
	prefix string
	maxAge time.Duration
	now    func() time.Time
}

func NewSweeper(dir, prefix string, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		dir:    dir,
		prefix: prefix,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Sweep removes every prefixed file in the directory modified more than
// maxAge ago and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	log := logging.FromContextS(ctx)
	paths, err := filepath.Glob(filepath.Join(s.dir, s.prefix+"*"))
	if err != nil {
		return 0, fmt.Errorf("bad scratch pattern: %w", err)
	}
	var (
		removed int
		errs    error
	)
	for _, p := range paths {
		info, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if info.IsDir() || s.now().Sub(info.ModTime()) <= s.maxAge {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, fmt.Errorf("failed to remove %q: %w", p, err))
			continue
		}
		removed++
		log.Infof("Deleted stale scratch file %q", p)
	}
	return removed, errs
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	log := logging.FromContextS(ctx)
	sweep := func() {
		if n, err := s.Sweep(ctx); err != nil {
			log.Errorf("Scratch sweep failed after removing %d file(s): %v", n, err)
		}
	}
	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweep()
		case <-ctx.Done():
			return
		}
	}
}
