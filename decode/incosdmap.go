package decode

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// IncOSDMap is the decoded header of an incremental OSD map (the diff
// applied to advance from Epoch-1 to Epoch), plus its optional embedded
// full CRUSH map blob (present only on epochs that changed the map).
type IncOSDMap struct {
	FSID      cursor.UUID
	Epoch     uint32
	Modified  cursor.UTime
	HasCrush  bool
	CrushBlob []byte
}

// DecodeIncOSDMap decodes an inc_osdmap object's concatenated body.
func DecodeIncOSDMap(c cursor.Cursor) (*IncOSDMap, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "inc_osdmap header")
	}
	fsid, err := cursor.ReadUUID(c)
	if err != nil {
		return nil, errors.Wrap(err, "inc_osdmap fsid")
	}
	epoch, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "inc_osdmap epoch")
	}
	modified, err := cursor.ReadUTime(c)
	if err != nil {
		return nil, errors.Wrap(err, "inc_osdmap modified")
	}
	im := &IncOSDMap{FSID: fsid, Epoch: uint32(epoch), Modified: modified}

	present, err := c.Read(1)
	if err != nil {
		return nil, errors.Wrap(err, "inc_osdmap crush presence flag")
	}
	if present[0] != 0 {
		crushBL, err := cursor.Bufferlist(c)
		if err != nil {
			return nil, errors.Wrap(err, "inc_osdmap crush map blob")
		}
		if err := verifyCrushMagic(crushBL.Remaining()); err != nil {
			return nil, errors.Wrap(err, "inc_osdmap embedded crush map")
		}
		im.HasCrush = true
		im.CrushBlob = crushBL.Remaining()
	}
	_ = hdr
	return im, nil
}

func (m *IncOSDMap) Report() string {
	return fmt.Sprintf("inc_osdmap epoch=%d fsid=%s modified=%d.%09d has_crush=%v\n",
		m.Epoch, m.FSID, m.Modified.Seconds, m.Modified.Nanos, m.HasCrush)
}
