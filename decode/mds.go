package decode

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// MDSInotable is the decoded mds_inotable object: the CephFS metadata
// server's free/used inode-number ranges. Present in the original Python
// implementation's decoder module but dropped from the distilled core
// scope; kept here as an exported decoder. object.Reconstruct does not
// call it: its known-object dispatch covers only osdmap, inc_osdmap,
// osd_superblock and rbd_id.
type MDSInotable struct {
	Version uint64
	FreeRanges []InoRange
}

// InoRange is a [First, First+Len) inode-number range.
type InoRange struct {
	First uint64
	Len   uint64
}

// DecodeMDSInotable decodes an mds_inotable object's concatenated body.
func DecodeMDSInotable(c cursor.Cursor) (*MDSInotable, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "mds_inotable header")
	}
	version, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "mds_inotable version")
	}
	n, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "mds_inotable free range count")
	}
	ranges := make([]InoRange, 0, n)
	for i := uint64(0); i < n; i++ {
		first, err := cursor.VarInt(c)
		if err != nil {
			return nil, errors.Wrapf(err, "mds_inotable free range %d first", i)
		}
		length, err := cursor.VarInt(c)
		if err != nil {
			return nil, errors.Wrapf(err, "mds_inotable free range %d len", i)
		}
		ranges = append(ranges, InoRange{First: first, Len: length})
	}
	if err := hdr.CheckEnd(c); err != nil {
		return nil, errors.Wrap(err, "mds_inotable end offset")
	}
	return &MDSInotable{Version: version, FreeRanges: ranges}, nil
}

func (t *MDSInotable) Report() string {
	return fmt.Sprintf("mds_inotable version=%d free_ranges=%d\n", t.Version, len(t.FreeRanges))
}
