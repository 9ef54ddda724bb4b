package playback

import (
	"context"
	"errors"
	"sync"
)

// Kind identifies one of the two logical tracks.
type Kind int

const (
	Main Kind = iota
	QA
)

func (k Kind) String() string {
	if k == QA {
		return "qa"
	}
	return "main"
}

var (
	// ErrDecode means a payload could not be turned into a playable buffer.
	ErrDecode = errors.New("playback: decode failed")
	// ErrIncomplete means a chunked stream was consumed before its
	// completion signal arrived. Partial playback is not supported.
	ErrIncomplete = errors.New("playback: stream not complete")
)

// Sink consumes audible output for exactly one client device. Implementations
// buffer internally and pace delivery; Reset drops queued audio immediately.
type Sink interface {
	WriteAudio(kind Kind, chunk []byte) error
	Reset()
}

// Source yields a fully-resolved playable payload. Concrete sources are a
// sealed chunk buffer (streaming transport) or a fetched asset (HTTP
// transport).
type Source interface {
	Bytes(ctx context.Context) ([]byte, error)
}

// BytesSource adapts an in-memory payload to Source.
type BytesSource []byte

func (b BytesSource) Bytes(context.Context) ([]byte, error) { return b, nil }

// ChunkBuffer accumulates raw audio chunks in arrival order. It becomes a
// usable Source only after Complete seals it; reading it earlier fails with
// ErrIncomplete.
type ChunkBuffer struct {
	mu     sync.Mutex
	buf    []byte
	sealed bool
}

func NewChunkBuffer() *ChunkBuffer { return &ChunkBuffer{} }

// Append adds one chunk. Chunk boundaries carry no meaning; bytes are
// concatenated exactly as received.
func (c *ChunkBuffer) Append(chunk []byte) {
	c.mu.Lock()
	if !c.sealed {
		c.buf = append(c.buf, chunk...)
	}
	c.mu.Unlock()
}

// Complete seals the buffer, making it readable.
func (c *ChunkBuffer) Complete() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

// Len reports the accumulated byte count.
func (c *ChunkBuffer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Bytes returns the sealed payload, or ErrIncomplete before Complete.
func (c *ChunkBuffer) Bytes(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sealed {
		return nil, ErrIncomplete
	}
	return c.buf, nil
}
