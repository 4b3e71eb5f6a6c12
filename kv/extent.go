package kv

import (
	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// invalidOffsetBytes is the 80-bit (10-byte) little-endian sentinel
// 0x01FFFFFFFFFFFFFFFFFF marking a hole (unwritten region) rather than a
// real allocation. It does not fit in a uint64, so it is compared
// byte-for-byte rather than as an integer constant.
var invalidOffsetBytes = [10]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}

// PhysicalExtent is {offset, length} on the underlying image, or a hole
// when Invalid is true.
type PhysicalExtent struct {
	Offset  uint64
	Length  uint64
	Invalid bool
}

// ReadPhysicalExtent decodes one physical extent: a 10-byte peek checked
// against the invalid-offset sentinel, else an LBA-encoded offset,
// followed by a VarIntLowZ length.
func ReadPhysicalExtent(c cursor.Cursor) (PhysicalExtent, error) {
	start := c.Tell()
	peek, err := c.Read(10)
	if err != nil {
		return PhysicalExtent{}, errors.Wrap(err, "physical extent peek")
	}
	invalid := true
	for i := 0; i < 10; i++ {
		if peek[i] != invalidOffsetBytes[i] {
			invalid = false
			break
		}
	}
	if invalid {
		length, err := cursor.VarIntLowZ(c)
		if err != nil {
			return PhysicalExtent{}, errors.Wrap(err, "physical extent (hole) length")
		}
		return PhysicalExtent{Invalid: true, Length: length}, nil
	}
	if err := c.Seek(start); err != nil {
		return PhysicalExtent{}, err
	}
	off, err := cursor.LBA(c)
	if err != nil {
		return PhysicalExtent{}, errors.Wrap(err, "physical extent offset")
	}
	length, err := cursor.VarIntLowZ(c)
	if err != nil {
		return PhysicalExtent{}, errors.Wrap(err, "physical extent length")
	}
	return PhysicalExtent{Offset: off, Length: length}, nil
}

// Blob flag bits.
const (
	BlobCompressed = 0x2
	BlobCSum       = 0x4
	BlobHasUnused  = 0x8
	BlobShared     = 0x10
)

// Blob is a BlueStore blob: a run of physical extents plus optional
// compression, checksum, unused-mask, and shared-blob-id metadata.
type Blob struct {
	Extents          []PhysicalExtent
	Flags            uint64
	CompressedLength uint64
	HasCompressed    bool
	CSumKind         uint8
	CSumChunkOrder   uint8
	CSumData         []byte
	HasCSum          bool
	UnusedMask       uint16
	HasUnused        bool
	SharedBlobID     uint64
	HasSharedBlob    bool
}

// ReadBlob decodes an inline blob body: a physical-extent list, a flags
// varint, and the flag-gated optional fields.
func ReadBlob(c cursor.Cursor) (*Blob, error) {
	n, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "blob extent count")
	}
	b := &Blob{}
	for i := uint64(0); i < n; i++ {
		pe, err := ReadPhysicalExtent(c)
		if err != nil {
			return nil, errors.Wrapf(err, "blob extent %d", i)
		}
		if !pe.Invalid {
			b.Extents = append(b.Extents, pe)
		}
	}
	flags, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "blob flags")
	}
	b.Flags = flags

	if flags&BlobCompressed != 0 {
		cl, err := cursor.VarIntLowZ(c)
		if err != nil {
			return nil, errors.Wrap(err, "blob compressed length")
		}
		b.CompressedLength = cl
		b.HasCompressed = true
	}
	if flags&BlobCSum != 0 {
		kind, err := c.Read(1)
		if err != nil {
			return nil, errors.Wrap(err, "blob csum kind")
		}
		order, err := c.Read(1)
		if err != nil {
			return nil, errors.Wrap(err, "blob csum chunk order")
		}
		dataLen, err := cursor.VarInt(c)
		if err != nil {
			return nil, errors.Wrap(err, "blob csum data length")
		}
		data, err := c.Read(int(dataLen))
		if err != nil {
			return nil, errors.Wrap(err, "blob csum data")
		}
		b.CSumKind, b.CSumChunkOrder, b.CSumData, b.HasCSum = kind[0], order[0], data, true
	}
	if flags&BlobHasUnused != 0 {
		um, err := cursor.FixedUint(c, 2, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "blob unused mask")
		}
		b.UnusedMask, b.HasUnused = uint16(um), true
	}
	if flags&BlobShared != 0 {
		id, err := cursor.VarInt(c)
		if err != nil {
			return nil, errors.Wrap(err, "blob shared blob id")
		}
		b.SharedBlobID, b.HasSharedBlob = id, true
	}
	return b, nil
}

// LogicalExtent is {logical_offset, blob_offset, length, blob}.
type LogicalExtent struct {
	LogicalOffset uint64
	BlobOffset    uint64
	Length        uint64
	Blob          *Blob
}

// Extent-map entry flag bits (low 4 bits of the blob_id varint).
const (
	emContiguous = 0x1
	emZeroOffset = 0x2
	emSameLength = 0x4
	emSpanning   = 0x8
	emShiftBits  = 4
)

// ReadExtentMap decodes an onode's logical extent map: num:varint entries,
// each combining compression flags with a shifted blob-id payload.
// spanningBlobs resolves SPANNING entries by shifted id; a local list
// accumulates freshly inline-decoded blobs for later non-spanning reuse.
func ReadExtentMap(c cursor.Cursor, spanningBlobs map[uint64]*Blob) ([]LogicalExtent, error) {
	num, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "extent map count")
	}
	var position uint64
	var produced []*Blob
	out := make([]LogicalExtent, 0, num)

	for i := uint64(0); i < num; i++ {
		word, err := cursor.VarInt(c)
		if err != nil {
			return nil, errors.Wrapf(err, "extent map entry %d flags", i)
		}
		flags := word & 0xf
		shifted := word >> emShiftBits

		if flags&emContiguous == 0 {
			gap, err := cursor.VarIntLowZ(c)
			if err != nil {
				return nil, errors.Wrapf(err, "extent map entry %d gap", i)
			}
			position += gap
		}
		logicalOffset := position

		var blobOffset uint64
		if flags&emZeroOffset == 0 {
			bo, err := cursor.VarIntLowZ(c)
			if err != nil {
				return nil, errors.Wrapf(err, "extent map entry %d blob_offset", i)
			}
			blobOffset = bo
		}

		var length uint64
		if flags&emSameLength == 0 {
			l, err := cursor.VarIntLowZ(c)
			if err != nil {
				return nil, errors.Wrapf(err, "extent map entry %d length", i)
			}
			length = l
		} else if len(out) > 0 {
			length = out[len(out)-1].Length
		}

		var blob *Blob
		if flags&emSpanning != 0 {
			blob = spanningBlobs[shifted]
			if blob == nil {
				return nil, errors.Errorf("extent map entry %d: unknown spanning blob id %d", i, shifted)
			}
		} else if shifted == 0 {
			blob, err = ReadBlob(c)
			if err != nil {
				return nil, errors.Wrapf(err, "extent map entry %d inline blob", i)
			}
			produced = append(produced, blob)
		} else {
			idx := int(shifted) - 1
			if idx < 0 || idx >= len(produced) {
				return nil, errors.Errorf("extent map entry %d: blob index %d out of range", i, idx)
			}
			blob = produced[idx]
		}

		out = append(out, LogicalExtent{LogicalOffset: logicalOffset, BlobOffset: blobOffset, Length: length, Blob: blob})
		position += length
	}
	return out, nil
}
