// Package bluefs replays the BlueFS superblock and transaction log embedded
// in a BlueStore OSD image, reconstructing the in-memory directory table,
// inode-to-file map, and allocator state, and extracting the files it
// describes (the embedded RocksDB database directory).
package bluefs

import (
	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

const (
	// SuperblockOffset is the fixed logical offset of the BlueFS superblock.
	SuperblockOffset = 0x1000
	// SuperblockSlackEnd is the offset preceding which superblock slack is
	// preserved verbatim.
	SuperblockSlackEnd = 0x2000
	// LogIno is the inode number of the BlueFS transaction log file.
	LogIno = 1
)

// Extent is a physical range on one of BlueFS's backing devices.
type Extent struct {
	Offset uint64
	Length uint64
	Bdev   uint8
}

// End returns Offset+Length.
func (e Extent) End() uint64 { return e.Offset + e.Length }

// ReadExtent decodes a single BlueFSExtent: a block header, an LBA-encoded
// offset, a VarIntLowZ length, and a one-byte backing-device id.
func ReadExtent(c cursor.Cursor) (Extent, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return Extent{}, errors.Wrap(err, "bluefs extent header")
	}
	off, err := cursor.LBA(c)
	if err != nil {
		return Extent{}, errors.Wrap(err, "bluefs extent offset")
	}
	length, err := cursor.VarIntLowZ(c)
	if err != nil {
		return Extent{}, errors.Wrap(err, "bluefs extent length")
	}
	bdevb, err := c.Read(1)
	if err != nil {
		return Extent{}, errors.Wrap(err, "bluefs extent bdev")
	}
	if err := hdr.CheckEnd(c); err != nil {
		return Extent{}, errors.Wrap(err, "bluefs extent end offset")
	}
	return Extent{Offset: off, Length: length, Bdev: bdevb[0]}, nil
}

// FNode is a BlueFS file descriptor: inode number, size, mtime, preferred
// backing device, and its list of physical extents.
type FNode struct {
	Ino        uint64
	Size       uint64
	Mtime      cursor.UTime
	PreferBdev uint8
	Extents    []Extent
}

// ReadFNode decodes an FNode: a block header, varint ino, varint size, a
// UTime mtime, a one-byte preferred device, and a varint-counted extent
// list.
func ReadFNode(c cursor.Cursor) (*FNode, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "fnode header")
	}
	ino, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "fnode ino")
	}
	size, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "fnode size")
	}
	mtime, err := cursor.ReadUTime(c)
	if err != nil {
		return nil, errors.Wrap(err, "fnode mtime")
	}
	preferb, err := c.Read(1)
	if err != nil {
		return nil, errors.Wrap(err, "fnode prefer_bdev")
	}
	n, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "fnode extent count")
	}
	extents := make([]Extent, 0, n)
	for i := uint64(0); i < n; i++ {
		e, err := ReadExtent(c)
		if err != nil {
			return nil, errors.Wrapf(err, "fnode extent %d", i)
		}
		extents = append(extents, e)
	}
	if err := hdr.CheckEnd(c); err != nil {
		return nil, errors.Wrap(err, "fnode end offset")
	}
	return &FNode{Ino: ino, Size: size, Mtime: mtime, PreferBdev: preferb[0], Extents: extents}, nil
}

// Superblock is the BlueFS superblock at logical offset 0x1000.
type Superblock struct {
	BlueFSUUID cursor.UUID
	OSDUUID    cursor.UUID
	Version    uint64
	BlockSize  uint64
	LogFNode   *FNode
	CRC        uint32
	Slack      []byte
}

// ReadSuperblock decodes the BlueFS superblock at the cursor's current
// position (conventionally SuperblockOffset).
func ReadSuperblock(c cursor.Cursor) (*Superblock, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "bluefs superblock header")
	}
	bfsUUID, err := cursor.ReadUUID(c)
	if err != nil {
		return nil, errors.Wrap(err, "bluefs superblock bluefs uuid")
	}
	osdUUID, err := cursor.ReadUUID(c)
	if err != nil {
		return nil, errors.Wrap(err, "bluefs superblock osd uuid")
	}
	version, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "bluefs superblock version")
	}
	blockSize, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "bluefs superblock block_size")
	}
	logFNode, err := ReadFNode(c)
	if err != nil {
		return nil, errors.Wrap(err, "bluefs superblock log fnode")
	}
	if err := hdr.CheckEnd(c); err != nil {
		return nil, errors.Wrap(err, "bluefs superblock end offset")
	}
	crc, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "bluefs superblock crc")
	}
	slackLen := SuperblockSlackEnd - c.Tell()
	if slackLen < 0 {
		return nil, errors.Wrap(cursor.ErrDecodeMismatch, "bluefs superblock overruns slack window")
	}
	slack, err := c.Read(int(slackLen))
	if err != nil {
		return nil, errors.Wrap(err, "bluefs superblock slack")
	}
	return &Superblock{
		BlueFSUUID: bfsUUID,
		OSDUUID:    osdUUID,
		Version:    version,
		BlockSize:  blockSize,
		LogFNode:   logFNode,
		CRC:        uint32(crc),
		Slack:      slack,
	}, nil
}
