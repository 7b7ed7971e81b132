package proxy

import (
	"context"
	"errors"
	"io"
)

// relay moves bytes from src to the response through a fixed pool of
// buffers. pump may only read into a free buffer, and buffers are freed only
// after the response writer accepted them, so a slow client stops upstream
// reads once the pool is exhausted. The OS pipe then fills and the
// extractor blocks on its own write.
type relay struct {
	chunks chan []byte
	free   chan []byte
	done   chan struct{}
	// err is the read error, nil on clean EOF. Valid once chunks is closed.
	err error
}

func startRelay(ctx context.Context, src io.Reader, chunkSize, buffers int) *relay {
	r := &relay{
		chunks: make(chan []byte, buffers),
		free:   make(chan []byte, buffers),
		done:   make(chan struct{}),
	}
	for i := 0; i < buffers; i++ {
		r.free <- make([]byte, chunkSize)
	}
	go r.pump(ctx, src)
	return r
}

func (r *relay) pump(ctx context.Context, src io.Reader) {
	defer close(r.done)
	defer close(r.chunks)
	for {
		var buf []byte
		select {
		case buf = <-r.free:
		case <-ctx.Done():
			r.err = ctx.Err()
			return
		}
		n, err := src.Read(buf[:cap(buf)])
		if n > 0 {
			select {
			case r.chunks <- buf[:n]:
			case <-ctx.Done():
				r.err = ctx.Err()
				return
			}
		} else {
			r.free <- buf
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
			}
			return
		}
	}
}

func (r *relay) release(buf []byte) {
	r.free <- buf[:cap(buf)]
}
