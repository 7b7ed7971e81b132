package scratch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, path string, modTime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func TestSweeper_Sweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	stale := filepath.Join(dir, "streamfetch_1_aaa.mp4")
	stalePart := filepath.Join(dir, "streamfetch_1_aaa.mp4.part")
	fresh := filepath.Join(dir, "streamfetch_2_bbb.mp3")
	foreign := filepath.Join(dir, "other.mp4")
	touch(t, stale, now.Add(-2*time.Hour))
	touch(t, stalePart, now.Add(-2*time.Hour))
	touch(t, fresh, now.Add(-time.Minute))
	touch(t, foreign, now.Add(-48*time.Hour))

	s := NewSweeper(dir, "streamfetch_", time.Hour)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Sweep() removed %d files, want 2", n)
	}
	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "should_remove_stale_artifact", path: stale, want: false},
		{name: "should_remove_stale_partial_file", path: stalePart, want: false},
		{name: "should_keep_fresh_artifact", path: fresh, want: true},
		{name: "should_keep_file_without_prefix", path: foreign, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exists(tt.path); got != tt.want {
				t.Errorf("exists(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSweeper_Run(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "streamfetch_1_aaa.mp4")
	touch(t, stale, time.Now().Add(-2*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewSweeper(dir, "streamfetch_", time.Hour).Run(ctx, time.Hour)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for exists(stale) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if exists(stale) {
		t.Error("startup sweep did not remove the stale file")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
