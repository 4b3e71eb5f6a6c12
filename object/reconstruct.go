// Package object walks the logical extents of a decoded onode through
// their blobs and physical extents to reconstruct object bodies, builds
// CephFS directory trees from inode backtraces, and performs an
// independent KV-free scan of the image for known structured objects.
package object

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
	"github.com/fbausch/vampyr/decode"
	"github.com/fbausch/vampyr/kv"
)

// Report describes what Reconstruct wrote for one onode.
type Report struct {
	OID     string
	Stripe  string
	Written uint64
	Digest  string
	Decoded string // non-empty when a structured decoder also ran
}

// Reconstruct writes one object row's body, slack, digest and metadata
// report under outDir/<oid>/, per the object reconstruction algorithm:
// walk logical extents in order, read each blob's physical extents from
// img, split each blob's bytes into body (the extent's Length bytes
// starting at its BlobOffset) and slack (the blob bytes after that),
// zero-pad to onode.Size if extents under-run it, and enforce
// written == size.
func Reconstruct(img cursor.Cursor, row *kv.ObjectRow, outDir string) (*Report, error) {
	if row.ONode == nil {
		return nil, errors.New("reconstruct: nil onode")
	}
	oid := row.Key.OID
	stripe := row.Key.Stripe
	dir := filepath.Join(outDir, oid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "reconstruct: mkdir %s", dir)
	}

	bodyPath := filepath.Join(dir, "object_"+stripe)
	f, err := os.Create(bodyPath)
	if err != nil {
		return nil, errors.Wrap(err, "reconstruct: create body file")
	}
	defer f.Close()

	h := md5.New()
	var written uint64
	var slack []byte

	for _, le := range row.ONode.LogicalExtents {
		if le.Blob == nil {
			continue
		}
		if _, err := f.Seek(int64(le.LogicalOffset), 0); err != nil {
			return nil, errors.Wrap(err, "reconstruct: seek body file")
		}
		blobData, err := readBlob(img, le.Blob)
		if err != nil {
			return nil, errors.Wrap(err, "reconstruct: read blob")
		}
		start := le.BlobOffset
		end := start + le.Length
		if end > uint64(len(blobData)) {
			end = uint64(len(blobData))
		}
		if start > uint64(len(blobData)) {
			start = uint64(len(blobData))
		}
		body := blobData[start:end]
		f.Write(body)
		h.Write(body)
		written += uint64(len(body))
		if end < uint64(len(blobData)) {
			slack = append(slack, blobData[end:]...)
		}
	}

	if written < row.ONode.Size {
		pad := make([]byte, row.ONode.Size-written)
		if _, err := f.Seek(int64(written), 0); err != nil {
			return nil, err
		}
		f.Write(pad)
		h.Write(pad)
		written = row.ONode.Size
	}
	if written != row.ONode.Size {
		return nil, errors.Errorf("reconstruct: written %d != onode size %d for %s", written, row.ONode.Size, oid)
	}

	if len(slack) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "slack_"+stripe), slack, 0o644); err != nil {
			return nil, err
		}
	}
	digest := hex.EncodeToString(h.Sum(nil))
	if err := os.WriteFile(filepath.Join(dir, "md5_object_"+stripe), []byte(digest), 0o644); err != nil {
		return nil, err
	}
	if err := writeVampyrMeta(dir, stripe, row); err != nil {
		return nil, err
	}

	rep := &Report{OID: oid, Stripe: stripe, Written: written, Digest: digest}

	if decoded, err := decodeKnownObject(img, row, dir, stripe); err == nil {
		rep.Decoded = decoded
	}

	return rep, nil
}

// readBlob reads a blob's physical extents into one contiguous buffer,
// treating holes (invalid extents) as runs of zero bytes.
func readBlob(img cursor.Cursor, b *kv.Blob) ([]byte, error) {
	var out []byte
	for _, pe := range b.Extents {
		if pe.Invalid {
			out = append(out, make([]byte, pe.Length)...)
			continue
		}
		if err := img.Seek(int64(pe.Offset)); err != nil {
			return nil, err
		}
		data, err := img.Read(int(pe.Length))
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

func writeVampyrMeta(dir, stripe string, row *kv.ObjectRow) error {
	path := filepath.Join(dir, "vampyrmeta_"+stripe)
	var b []byte
	b = append(b, []byte(fmt.Sprintf("key: %s\n", row.Key))...)
	for name := range row.ONode.Xattrs {
		b = append(b, []byte(fmt.Sprintf("xattr: %s (%d bytes)\n", name, len(row.ONode.Xattrs[name])))...)
	}
	b = append(b, []byte(fmt.Sprintf("logical extents: %d\n", len(row.ONode.LogicalExtents)))...)
	for _, le := range row.ONode.LogicalExtents {
		b = append(b, []byte(fmt.Sprintf("  [0x%x, 0x%x) blob_offset=0x%x\n", le.LogicalOffset, le.LogicalOffset+le.Length, le.BlobOffset))...)
	}
	return os.WriteFile(path, b, 0o644)
}

// knownObjectRE matches oids whose body is a known structured object.
var knownObjectRE = regexp.MustCompile(`^(osdmap|inc_osdmap|osd_superblock|rbd_id)(\..+)?$`)

// decodeKnownObject attempts the matching structured decoder against the
// object's just-written body, writing decoded_<stripe> (and crush_<stripe>
// for osdmap/inc_osdmap) on success.
func decodeKnownObject(img cursor.Cursor, row *kv.ObjectRow, dir, stripe string) (string, error) {
	m := knownObjectRE.FindStringSubmatch(row.Key.OID)
	if m == nil {
		return "", errors.New("object: not a known system object")
	}
	bodyPath := filepath.Join(dir, "object_"+stripe)
	data, err := os.ReadFile(bodyPath)
	if err != nil {
		return "", err
	}
	bc := cursor.NewBufferCursor(data)

	var report string
	var crush []byte
	switch m[1] {
	case "osdmap":
		om, err := decode.DecodeOSDMap(bc)
		if err != nil {
			return "", err
		}
		report = om.Report()
		crush = om.CrushBlob
	case "inc_osdmap":
		im, err := decode.DecodeIncOSDMap(bc)
		if err != nil {
			return "", err
		}
		report = im.Report()
		if im.HasCrush {
			crush = im.CrushBlob
		}
	case "osd_superblock":
		sb, err := decode.DecodeOSDSuperblock(bc)
		if err != nil {
			return "", err
		}
		report = sb.Report()
	case "rbd_id":
		id, err := decode.DecodeRBDID(bc)
		if err != nil {
			return "", err
		}
		report = id.Report()
		dataLink := filepath.Join(filepath.Dir(dir), id.DataDirName())
		_ = os.Symlink(dataLink, filepath.Join(dir, "data_"+stripe))
	}

	if err := os.WriteFile(filepath.Join(dir, "decoded_"+stripe), []byte(report), 0o644); err != nil {
		return "", err
	}
	if crush != nil {
		if err := os.WriteFile(filepath.Join(dir, "crush_"+stripe), crush, 0o644); err != nil {
			return "", err
		}
	}
	return report, nil
}
