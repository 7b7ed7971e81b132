// Package progress counts relayed bytes.
package progress

import (
	"sync"
	"time"
)

// Counter is an io.Writer that only counts. contentLen is 0 when the total
// size is unknown, as it is for direct-stream downloads.
type Counter struct {
	contentLen        int64
	currentDownloaded int64

	mu        *sync.RWMutex
	startTime time.Time
	now       func() time.Time
}

func NewCounter(contentLen int64) *Counter {
	return &Counter{
		contentLen: contentLen,
		mu:         new(sync.RWMutex),
		startTime:  time.Now(),
		now:        time.Now,
	}
}

func (c *Counter) Write(p []byte) (n int, err error) {
	c.Add(int64(len(p)))
	return len(p), nil
}

func (c *Counter) Add(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentDownloaded += n
}

// Percentage returns -1 when the total is unknown.
func (c *Counter) Percentage() float64 {
	if c.contentLen <= 0 {
		return -1
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return (float64(c.currentDownloaded) / float64(c.contentLen)) * 100.0
}

func (c *Counter) ContentLen() int64 {
	return c.contentLen
}

func (c *Counter) CurrentDownloaded() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentDownloaded
}

func (c *Counter) Elapsed() time.Duration {
	return c.now().Sub(c.startTime)
}

// BytesPerSecond is the average throughput since the counter was created.
func (c *Counter) BytesPerSecond() float64 {
	elapsed := c.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.CurrentDownloaded()) / elapsed
}
