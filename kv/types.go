package kv

import (
	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// FNode is the CephFS directory-entry payload decoded from M/P rows: a
// minimal ino/size/mtime record distinct from bluefs.FNode (which carries
// BlueFS's own physical extents) — these describe a CephFS inode, not a
// BlueFS file.
type FNode struct {
	Ino   uint64
	Size  uint64
	Mtime cursor.UTime
}

// CNode is a collection node: a header plus a bits field describing PG
// placement-group bit width.
type CNode struct {
	Bits uint32
}

// ReadCNode decodes a CNode: BlockHeader followed by a u32 bits field.
func ReadCNode(c cursor.Cursor) (*CNode, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "cnode header")
	}
	bits, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "cnode bits")
	}
	if err := hdr.CheckEnd(c); err != nil {
		return nil, errors.Wrap(err, "cnode end offset")
	}
	return &CNode{Bits: uint32(bits)}, nil
}

// Statfs is the five-field per-pool usage counter stored under the T
// prefix. It carries no block header.
type Statfs struct {
	Allocated           uint64
	Stored              uint64
	CompressedOriginal  uint64
	Compressed          uint64
	CompressedAllocated uint64
}

// ReadStatfs decodes a Statfs value: five plain little-endian u64 fields.
func ReadStatfs(c cursor.Cursor) (*Statfs, error) {
	vals := make([]uint64, 5)
	for i := range vals {
		v, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrapf(err, "statfs field %d", i)
		}
		vals[i] = v
	}
	return &Statfs{
		Allocated:           vals[0],
		Stored:              vals[1],
		CompressedOriginal:  vals[2],
		Compressed:          vals[3],
		CompressedAllocated: vals[4],
	}, nil
}

// SuperMeta holds the decoded S-prefix (OSD metadata) key/value pairs.
type SuperMeta struct {
	FreelistType           string
	BlueFSExtents          []BlueFSExtentPair
	BlobIDMax              uint64
	OndiskFormat           uint64
	MinCompatOndiskFormat  uint64
	NidMax                 uint64
	MinAllocSize           uint64
}

// BlueFSExtentPair is one (offset,length) pair of the S "bluefs_extents"
// list value.
type BlueFSExtentPair struct {
	Offset uint64
	Length uint64
}

// ReadIntOfLength decodes a little-endian integer whose width equals the
// length of the raw value bytes (used for the S-prefix scalar keys, which
// are stored at whatever width the writer happened to use).
func ReadIntOfLength(raw []byte) uint64 {
	var v uint64
	for i := len(raw) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(raw[i])
	}
	return v
}
