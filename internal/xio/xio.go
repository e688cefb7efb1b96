package xio

import (
	"context"
	"io"
)

// NewContextReader returns a reader that stops with ctx's error once ctx is done.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// NewProgressReader calls fn with the cumulated number of bytes read after each read.
func NewProgressReader(r io.Reader, fn func(done int64)) io.Reader {
	return &progressReader{r: r, fn: fn}
}

type progressReader struct {
	r    io.Reader
	fn   func(int64)
	done int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.done += int64(n)
		if r.fn != nil {
			r.fn(r.done)
		}
	}
	return n, err
}

// ReadCloser combines a reader with the closer of the underlying resource.
type ReadCloser struct {
	io.Reader
	Closer io.Closer
}

// Close closes the underlying resource.
func (r *ReadCloser) Close() error {
	return r.Closer.Close()
}
