// Package image provides a read-only, base-offset-relative view of the
// backing block device image file, satisfying cursor.Cursor so the rest of
// the analyzer never touches *os.File directly.
package image

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// Image is a read-only file-backed cursor with an additional base offset,
// mirroring osd.py's OSD.seek/tell/read (offset-relative file access).
type Image struct {
	f          *os.File
	baseOffset int64
	size       int64
}

var _ cursor.Cursor = (*Image)(nil)

// Open opens path read-only and returns an Image whose logical offset 0
// corresponds to physical offset baseOffset in the file.
func Open(path string, baseOffset int64) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(cursor.ErrImageIo, "open %s: %v", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(cursor.ErrImageIo, "stat %s: %v", path, err)
	}
	if _, err := f.Seek(baseOffset, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.Wrapf(cursor.ErrImageIo, "seek %s to base offset %d: %v", path, baseOffset, err)
	}
	return &Image{f: f, baseOffset: baseOffset, size: fi.Size() - baseOffset}, nil
}

// Close releases the underlying file handle. Safe to call more than once.
func (img *Image) Close() error {
	if img.f == nil {
		return nil
	}
	err := img.f.Close()
	img.f = nil
	return err
}

func (img *Image) Tell() int64 {
	pos, _ := img.f.Seek(0, io.SeekCurrent)
	return pos - img.baseOffset
}

func (img *Image) Seek(pos int64) error {
	_, err := img.f.Seek(pos+img.baseOffset, io.SeekStart)
	if err != nil {
		return errors.Wrapf(cursor.ErrImageIo, "seek to %d: %v", pos, err)
	}
	return nil
}

func (img *Image) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(img.f, buf); err != nil {
		return nil, errors.Wrapf(cursor.ErrImageIo, "read %d bytes at %d: %v", n, img.Tell(), err)
	}
	return buf, nil
}

func (img *Image) Len() int64 {
	return img.size
}

// BaseOffset returns the configured base offset.
func (img *Image) BaseOffset() int64 {
	return img.baseOffset
}
