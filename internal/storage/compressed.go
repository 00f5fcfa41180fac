package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var decoderPool = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("create zstd decoder: %v", err))
		}
		return d
	},
}

var encoderPool = sync.Pool{
	New: func() any {
		e, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			panic(fmt.Sprintf("create zstd encoder: %v", err))
		}
		return e
	},
}

// Compressed wraps a Storage and zstd-compresses blobs on the way in.
// Handles address the compressed bytes, so a Compressed store and its inner
// store must not be mixed for the same blobs.
type Compressed struct {
	inner Storage
}

// NewCompressed wraps inner.
func NewCompressed(inner Storage) *Compressed {
	return &Compressed{inner: inner}
}

func (c *Compressed) Store(ctx context.Context, data []byte) (Handle, error) {
	e := encoderPool.Get().(*zstd.Encoder)
	compressed := e.EncodeAll(data, make([]byte, 0, len(data)/2))
	encoderPool.Put(e)

	return c.inner.Store(ctx, compressed)
}

func (c *Compressed) Load(ctx context.Context, handle Handle) ([]byte, error) {
	compressed, err := c.inner.Load(ctx, handle)
	if err != nil {
		return nil, err
	}

	d := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(d)

	data, err := d.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress blob %s: %w", handle.short(), err)
	}
	return data, nil
}

func (c *Compressed) Delete(ctx context.Context, handle Handle) error {
	return c.inner.Delete(ctx, handle)
}

func (c *Compressed) Exists(ctx context.Context, handle Handle) (bool, error) {
	return c.inner.Exists(ctx, handle)
}

func (c *Compressed) Close() error {
	return c.inner.Close()
}
