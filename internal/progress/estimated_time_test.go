package progress

import (
	"sync"
	"testing"
	"time"
)

func fixedCounter(contentLen, downloaded int64, elapsed time.Duration) *Counter {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Counter{
		contentLen:        contentLen,
		currentDownloaded: downloaded,
		mu:                &sync.RWMutex{},
		startTime:         start,
		now:               func() time.Time { return start.Add(elapsed) },
	}
}

func TestCounter_EstimatedTime(t *testing.T) {
	tests := []struct {
		name    string
		counter *Counter
		want    time.Duration
		wantErr bool
	}{
		{
			name:    "should_estimate_remaining_time",
			counter: fixedCounter(15000, 15, time.Second),
			want:    999 * time.Second,
		},
		{
			name:    "should_return_err_on_unknown_total",
			counter: fixedCounter(0, 15, time.Second),
			wantErr: true,
		},
		{
			name:    "should_return_err_without_downloaded_data",
			counter: fixedCounter(15000, 0, time.Second),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.counter.EstimatedTime()
			if (err != nil) != tt.wantErr {
				t.Fatalf("EstimatedTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Round(time.Millisecond) != tt.want {
				t.Errorf("EstimatedTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCounter_Write(t *testing.T) {
	c := fixedCounter(0, 0, 2*time.Second)
	_, _ = c.Write(make([]byte, 100))
	c.Add(300)
	if got := c.CurrentDownloaded(); got != 400 {
		t.Errorf("CurrentDownloaded() = %d, want 400", got)
	}
	if got := c.Percentage(); got != -1 {
		t.Errorf("Percentage() = %v, want -1 for unknown total", got)
	}
	if got := c.BytesPerSecond(); got != 200 {
		t.Errorf("BytesPerSecond() = %v, want 200", got)
	}
}
