package kv

import (
	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// ExtentMapShard is a disjoint sub-range of an onode's logical extent map
// stored as a separate KV row keyed by (object-key, offset, 'x').
type ExtentMapShard struct {
	Offset uint32
	Bytes  uint32
	Used   bool // flagged once the corresponding shard row has been matched
}

// ONode is the in-store object descriptor.
type ONode struct {
	Nid    uint64
	Size   uint64
	Xattrs map[string][]byte
	Flags  uint8

	ExtentMapShards []*ExtentMapShard

	ExpectedObjectSize uint64
	ExpectedWriteSize  uint64
	AllocHintFlags     uint64

	SpanningBlobMap map[uint64]*Blob
	LogicalExtents  []LogicalExtent
}

// ReadONode decodes an onode header (nid, size, xattrs, flags, shard
// table, alloc hints, spanning blob map) but not its logical extent map,
// which the O-row handler decodes separately (inline, following the
// onode body, or header-less from a shard row).
func ReadONode(c cursor.Cursor) (*ONode, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "onode header")
	}
	o := &ONode{Xattrs: map[string][]byte{}, SpanningBlobMap: map[uint64]*Blob{}}

	nid, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "onode nid")
	}
	o.Nid = nid

	size, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "onode size")
	}
	o.Size = size

	nattrs, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "onode attrs count")
	}
	for i := uint64(0); i < nattrs; i++ {
		name, err := cursor.String(c)
		if err != nil {
			return nil, errors.Wrapf(err, "onode attr %d name", i)
		}
		bl, err := cursor.Bufferlist(c)
		if err != nil {
			return nil, errors.Wrapf(err, "onode attr %d value", i)
		}
		o.Xattrs[name] = bl.Remaining()
	}

	flagsB, err := c.Read(1)
	if err != nil {
		return nil, errors.Wrap(err, "onode flags")
	}
	o.Flags = flagsB[0]

	nshards, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "onode shard count")
	}
	for i := uint64(0); i < nshards; i++ {
		off, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrapf(err, "onode shard %d offset", i)
		}
		blen, err := cursor.VarInt(c)
		if err != nil {
			return nil, errors.Wrapf(err, "onode shard %d bytes", i)
		}
		o.ExtentMapShards = append(o.ExtentMapShards, &ExtentMapShard{Offset: uint32(off), Bytes: uint32(blen)})
	}

	eos, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "onode expected_object_size")
	}
	o.ExpectedObjectSize = eos
	ews, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "onode expected_write_size")
	}
	o.ExpectedWriteSize = ews
	ahf, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "onode alloc_hint_flags")
	}
	o.AllocHintFlags = ahf

	if err := hdr.CheckEnd(c); err != nil {
		return nil, errors.Wrap(err, "onode end offset")
	}

	// The spanning-blob-map section always follows, whether or not the
	// onode has any extent-map shards: a version byte, a varint blob
	// count, then that many (blob_id, blob) pairs.
	verB, err := c.Read(1)
	if err != nil {
		return nil, errors.Wrap(err, "onode spanning blob map version")
	}
	if verB[0] != 2 {
		return nil, errors.Wrapf(cursor.ErrNotImplementedVersion, "spanning blob map version %d", verB[0])
	}
	nblobs, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "onode spanning blob count")
	}
	for i := uint64(0); i < nblobs; i++ {
		blobID, err := cursor.VarInt(c)
		if err != nil {
			return nil, errors.Wrapf(err, "spanning blob %d id", i)
		}
		blob, err := ReadBlob(c)
		if err != nil {
			return nil, errors.Wrapf(err, "spanning blob %d", i)
		}
		o.SpanningBlobMap[blobID] = blob
	}

	return o, nil
}
