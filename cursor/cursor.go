// Package cursor implements the byte-cursor abstraction and the wire-level
// primitive decoders shared by BlueFS transaction replay and KV row
// decoding: fixed-width integers, variable-length integers, the low-zero
// variable integer, LBA-encoded extent offsets, block headers, strings,
// UUIDs, and the bufferlist container. There are no generic dict, list or
// pair decoders; callers decode those count-prefixed shapes inline.
package cursor

import (
	"github.com/pkg/errors"
)

// Cursor is a seekable byte source. Two concrete implementations exist:
// image.Image (backed by a read-only file with an added base offset) and
// BufferCursor (backed by an owned in-memory byte slice).
type Cursor interface {
	// Tell returns the current logical position.
	Tell() int64
	// Seek repositions the cursor to an absolute logical position.
	Seek(pos int64) error
	// Read reads exactly n bytes or fails: BufferCursor with
	// ErrOutOfRange, image.Image with ErrImageIo.
	Read(n int) ([]byte, error)
	// Len returns the total logical length of the underlying source.
	Len() int64
}

// Sentinel error kinds. Every decode-layer error wraps one of these with
// github.com/pkg/errors so callers can recover the kind with errors.Is
// while still seeing cursor position / field context in the message.
var (
	ErrImageIo              = errors.New("image io error")
	ErrUnexpectedMagic      = errors.New("unexpected magic")
	ErrUnexpectedLabel      = errors.New("unexpected label")
	ErrOutOfRange           = errors.New("value out of range")
	ErrDecodeMismatch       = errors.New("decode position mismatch")
	ErrUnknownSubkey        = errors.New("unknown sub-key")
	ErrNotImplementedVersion = errors.New("not implemented for this encoding version")
)

// BufferCursor is a Cursor backed by an owned byte slice, used for
// bufferlists and for KV row values decoded from the textual dump.
type BufferCursor struct {
	buf []byte
	pos int64
}

// NewBufferCursor wraps buf in a new cursor positioned at 0.
func NewBufferCursor(buf []byte) *BufferCursor {
	return &BufferCursor{buf: buf}
}

func (c *BufferCursor) Tell() int64 { return c.pos }

func (c *BufferCursor) Seek(pos int64) error {
	if pos < 0 || pos > int64(len(c.buf)) {
		return errors.Wrapf(ErrOutOfRange, "seek to %d in buffer of length %d", pos, len(c.buf))
	}
	c.pos = pos
	return nil
}

func (c *BufferCursor) Read(n int) ([]byte, error) {
	if n < 0 || c.pos+int64(n) > int64(len(c.buf)) {
		return nil, errors.Wrapf(ErrOutOfRange, "read %d bytes at %d exceeds buffer length %d", n, c.pos, len(c.buf))
	}
	out := c.buf[c.pos : c.pos+int64(n)]
	c.pos += int64(n)
	return out, nil
}

func (c *BufferCursor) Len() int64 { return int64(len(c.buf)) }

// Remaining returns the unread tail of the buffer without consuming it.
func (c *BufferCursor) Remaining() []byte {
	return c.buf[c.pos:]
}
