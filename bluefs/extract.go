package bluefs

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// Extract writes every directory and file in the replayed state to disk
// under outDir: for each directory it creates a physical directory, and
// for each linked (ino, filename) it concatenates the file's extents into
// <dir>/<filename>, writes the bytes beyond Size to <dir>/<filename>_slack,
// records the body digest in <dir>/<filename>.md5, and restores the file's
// mtime.
func Extract(img cursor.Cursor, st *State, outDir string) error {
	for _, d := range st.Dirs {
		dirPath := filepath.Join(outDir, d.Name)
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return errors.Wrapf(err, "bluefs extract: mkdir %s", dirPath)
		}
		for filename, ino := range d.Files {
			fn, ok := st.Inodes[ino]
			if !ok {
				continue
			}
			if err := extractFile(img, fn, filepath.Join(dirPath, filename)); err != nil {
				return errors.Wrapf(err, "bluefs extract: file %s/%s", d.Name, filename)
			}
		}
	}
	return nil
}

func extractFile(img cursor.Cursor, fn *FNode, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()

	h := md5.New()
	var written uint64
	var slack []byte

	for _, ext := range fn.Extents {
		if err := img.Seek(int64(ext.Offset)); err != nil {
			return err
		}
		data, err := img.Read(int(ext.Length))
		if err != nil {
			return err
		}
		remaining := fn.Size - written
		if uint64(len(data)) <= remaining {
			f.Write(data)
			h.Write(data)
			written += uint64(len(data))
		} else {
			body := data[:remaining]
			tail := data[remaining:]
			f.Write(body)
			h.Write(body)
			written += uint64(len(body))
			slack = append(slack, tail...)
		}
	}

	if len(slack) > 0 {
		if err := os.WriteFile(destPath+"_slack", slack, 0o644); err != nil {
			return err
		}
	}
	sum := h.Sum(nil)
	if err := os.WriteFile(destPath+".md5", []byte(hex.EncodeToString(sum)), 0o644); err != nil {
		return err
	}

	mtime := time.Unix(int64(fn.Mtime.Seconds), int64(fn.Mtime.Nanos))
	_ = os.Chtimes(destPath, mtime, mtime)
	return nil
}
