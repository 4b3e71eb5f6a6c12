package decode

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// OSDSuperblock is the decoded osd_superblock object: cluster and OSD
// identity plus the epoch bounds the OSD believes it holds.
type OSDSuperblock struct {
	ClusterFSID cursor.UUID
	OSDFSID     cursor.UUID
	WholeID     uint32
	CurrentEpoch uint32
	OldestMap    uint32
	NewestMap    uint32
}

// DecodeOSDSuperblock decodes an osd_superblock object's concatenated body.
func DecodeOSDSuperblock(c cursor.Cursor) (*OSDSuperblock, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "osd_superblock header")
	}
	clusterFSID, err := cursor.ReadUUID(c)
	if err != nil {
		return nil, errors.Wrap(err, "osd_superblock cluster_fsid")
	}
	osdFSID, err := cursor.ReadUUID(c)
	if err != nil {
		return nil, errors.Wrap(err, "osd_superblock osd_fsid")
	}
	wholeID, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "osd_superblock whoami")
	}
	current, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "osd_superblock current_epoch")
	}
	oldest, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "osd_superblock oldest_map")
	}
	newest, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "osd_superblock newest_map")
	}
	_ = hdr
	return &OSDSuperblock{
		ClusterFSID:  clusterFSID,
		OSDFSID:      osdFSID,
		WholeID:      uint32(wholeID),
		CurrentEpoch: uint32(current),
		OldestMap:    uint32(oldest),
		NewestMap:    uint32(newest),
	}, nil
}

func (s *OSDSuperblock) Report() string {
	return fmt.Sprintf("osd_superblock cluster_fsid=%s osd_fsid=%s whoami=%d current_epoch=%d oldest_map=%d newest_map=%d\n",
		s.ClusterFSID, s.OSDFSID, s.WholeID, s.CurrentEpoch, s.OldestMap, s.NewestMap)
}
