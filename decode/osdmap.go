// Package decode implements the structured object decoders used both by
// the per-object reconstructor (for onodes whose oid names a known
// system object) and by scan mode (an independent sweep of fixed-size
// image windows trying each decoder in turn).
package decode

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// OSDMap is the decoded header of a full OSD map epoch: enough to report
// the epoch, cluster fsid, and modification time, plus the raw embedded
// CRUSH map blob for separate extraction.
type OSDMap struct {
	Epoch     uint32
	FSID      cursor.UUID
	Modified  cursor.UTime
	CrushBlob []byte
}

// DecodeOSDMap decodes an osdmap object's concatenated body.
func DecodeOSDMap(c cursor.Cursor) (*OSDMap, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "osdmap header")
	}
	fsid, err := cursor.ReadUUID(c)
	if err != nil {
		return nil, errors.Wrap(err, "osdmap fsid")
	}
	epoch, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "osdmap epoch")
	}
	modified, err := cursor.ReadUTime(c)
	if err != nil {
		return nil, errors.Wrap(err, "osdmap modified")
	}
	crushBL, err := cursor.Bufferlist(c)
	if err != nil {
		return nil, errors.Wrap(err, "osdmap crush map blob")
	}
	om := &OSDMap{Epoch: uint32(epoch), FSID: fsid, Modified: modified, CrushBlob: crushBL.Remaining()}

	if err := verifyCrushMagic(om.CrushBlob); err != nil {
		return nil, errors.Wrap(err, "osdmap embedded crush map")
	}
	// The remainder of the osdmap (pool table, pg temp, osd state
	// arrays, ...) is not decoded: reconstructing an object's body only
	// needs the epoch/fsid/crush-blob identity fields for the textual
	// report; per-pool/per-osd detail is outside the extraction path.
	_ = hdr
	return om, nil
}

// Report renders a short textual summary, matching the forensic report
// style the object reconstructor writes to decoded_<stripe>.
func (m *OSDMap) Report() string {
	return fmt.Sprintf("osdmap epoch=%d fsid=%s modified=%d.%09d crush_bytes=%d\n",
		m.Epoch, m.FSID, m.Modified.Seconds, m.Modified.Nanos, len(m.CrushBlob))
}

// crushMagic is CrushWrapper's own encode magic (0x00010000 in the
// original source, raised as a VampyrMagicException on mismatch).
const crushMagic = 0x00010000

func verifyCrushMagic(blob []byte) error {
	if len(blob) < 4 {
		return errors.Wrap(cursor.ErrUnexpectedMagic, "crush blob too short")
	}
	bc := cursor.NewBufferCursor(blob)
	magic, err := cursor.FixedUint(bc, 4, cursor.LittleEndian)
	if err != nil {
		return err
	}
	if magic != crushMagic {
		return errors.Wrapf(cursor.ErrUnexpectedMagic, "crush magic 0x%x != 0x%x", magic, crushMagic)
	}
	return nil
}
