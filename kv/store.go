package kv

import (
	"encoding/binary"
	"log"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// ObjectRow is one decoded O-prefix row: its key and (possibly nil, for a
// tombstone/placeholder) onode.
type ObjectRow struct {
	Key   *ObjectNameKey
	ONode *ONode // nil for an empty-value placeholder row
}

// MPEntry is one decoded M/P sub-key row, keyed by the 8-byte big-endian
// object id and the sub-key name following the '.' separator. Deep
// PG-log/PG-info structures (CephPGInfo, CephPGLogEntry, and friends) are
// retained as classified-but-opaque payloads: object-body reconstruction
// only depends on dentry-to-inode links, not on PG log contents, so full
// decoding of the PG log is out of the reconstruction-critical path.
type MPEntry struct {
	ObjectID uint64
	SubKey   string
	Raw      []byte
	FNode    *FNode // populated for '-' header rows and '*_head' dentries
}

// Store is the fully loaded, prefix-dispatched KV table set.
type Store struct {
	Objects  []*ObjectRow
	byRawKey map[string]*ObjectRow

	Super   SuperMeta
	Statfs  map[string]*Statfs
	CNodes  map[string]*CNode
	MP      []*MPEntry
	BMeta   map[string]uint64
	BBitmap map[uint64][]byte
	L       map[string][]byte
	X       map[string][]byte

	// PhysicalExtents is the ephemeral process-wide registry of every
	// valid physical extent seen while decoding onode extent maps, used
	// after decoding completes to derive allocated/unallocated summaries.
	PhysicalExtents []PhysicalExtent
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		byRawKey: map[string]*ObjectRow{},
		Statfs:   map[string]*Statfs{},
		CNodes:   map[string]*CNode{},
		BMeta:    map[string]uint64{},
		BBitmap:  map[uint64][]byte{},
		L:        map[string][]byte{},
		X:        map[string][]byte{},
	}
}

// Build dispatches every row to its prefix handler in order, returning the
// populated Store. Unknown sub-keys and recoverable decode failures are
// logged and skipped rather than aborting the load.
func Build(rows []*Row) *Store {
	s := NewStore()
	for _, row := range rows {
		var err error
		switch row.Prefix {
		case 'O':
			err = s.handleO(row)
		case 'S':
			err = s.handleS(row)
		case 'T':
			err = s.handleT(row)
		case 'C':
			err = s.handleC(row)
		case 'M', 'P':
			err = s.handleMP(row)
		case 'B':
			err = s.handleB(row)
		case 'b':
			err = s.handleb(row)
		case 'L':
			s.L[string(row.RawKey)] = row.RawValue
		case 'X':
			s.X[string(row.RawKey)] = row.RawValue
		default:
			log.Printf("kv: unknown row prefix %q, retaining opaque", row.Prefix)
		}
		if err != nil {
			log.Printf("kv: %v", err)
		}
	}
	return s
}

func (s *Store) handleO(row *Row) error {
	// A shard row's key is a base onode key with a 4-byte big-endian
	// offset and a trailing 'x' appended; check for that before
	// attempting a full key parse, since the shard tail is not itself a
	// valid (snap, generation, 'o') suffix.
	if len(row.RawKey) > 5 && row.RawKey[len(row.RawKey)-1] == 'x' {
		baseKey := row.RawKey[:len(row.RawKey)-5]
		if base, ok := s.byRawKey[string(baseKey)]; ok && base.ONode != nil {
			offset := binary.BigEndian.Uint32(row.RawKey[len(row.RawKey)-5 : len(row.RawKey)-1])
			var shard *ExtentMapShard
			for _, sh := range base.ONode.ExtentMapShards {
				if sh.Offset == offset {
					shard = sh
					break
				}
			}
			if shard == nil {
				return errors.Errorf("O shard row: no matching shard at offset %d", offset)
			}
			shard.Used = true
			vc := cursor.NewBufferCursor(row.RawValue)
			extents, err := ReadExtentMap(vc, base.ONode.SpanningBlobMap)
			if err != nil {
				return errors.Wrap(err, "O shard row extent map")
			}
			base.ONode.LogicalExtents = append(base.ONode.LogicalExtents, extents...)
			s.collectExtents(extents)
			return nil
		}
	}

	kc := cursor.NewBufferCursor(row.RawKey[1:])
	key, err := ParseObjectNameKey(kc)
	if err != nil {
		return errors.Wrap(err, "O row key")
	}

	if len(row.RawValue) == 0 {
		s.Objects = append(s.Objects, &ObjectRow{Key: key})
		s.byRawKey[string(row.RawKey)] = s.Objects[len(s.Objects)-1]
		return nil
	}

	vc := cursor.NewBufferCursor(row.RawValue)
	onode, err := ReadONode(vc)
	if err != nil {
		return errors.Wrap(err, "O row onode")
	}
	if len(onode.ExtentMapShards) == 0 {
		extents, err := ReadExtentMap(vc, onode.SpanningBlobMap)
		if err != nil {
			return errors.Wrap(err, "O row inline extent map")
		}
		onode.LogicalExtents = extents
		s.collectExtents(extents)
	}
	or := &ObjectRow{Key: key, ONode: onode}
	s.Objects = append(s.Objects, or)
	s.byRawKey[string(row.RawKey)] = or
	return nil
}

func (s *Store) collectExtents(extents []LogicalExtent) {
	for _, le := range extents {
		if le.Blob == nil {
			continue
		}
		s.PhysicalExtents = append(s.PhysicalExtents, le.Blob.Extents...)
	}
}

func (s *Store) handleS(row *Row) error {
	key := string(row.RawKey[1:])
	switch key {
	case "freelist_type":
		s.Super.FreelistType = string(row.RawValue)
	case "bluefs_extents":
		c := cursor.NewBufferCursor(row.RawValue)
		n, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
		if err != nil {
			return errors.Wrap(err, "S bluefs_extents count")
		}
		for i := uint64(0); i < n; i++ {
			off, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
			if err != nil {
				return err
			}
			length, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
			if err != nil {
				return err
			}
			s.Super.BlueFSExtents = append(s.Super.BlueFSExtents, BlueFSExtentPair{Offset: off, Length: length})
		}
	case "blobid_max":
		s.Super.BlobIDMax = ReadIntOfLength(row.RawValue)
	case "ondisk_format":
		s.Super.OndiskFormat = ReadIntOfLength(row.RawValue)
	case "min_compat_ondisk_format":
		s.Super.MinCompatOndiskFormat = ReadIntOfLength(row.RawValue)
	case "nid_max":
		s.Super.NidMax = ReadIntOfLength(row.RawValue)
	case "min_alloc_size":
		s.Super.MinAllocSize = ReadIntOfLength(row.RawValue)
	default:
		log.Printf("kv: unknown S sub-key %q", key)
	}
	return nil
}

func (s *Store) handleT(row *Row) error {
	c := cursor.NewBufferCursor(row.RawValue)
	sf, err := ReadStatfs(c)
	if err != nil {
		return errors.Wrap(err, "T row")
	}
	s.Statfs[string(row.RawKey[1:])] = sf
	return nil
}

func (s *Store) handleC(row *Row) error {
	if len(row.RawValue) == 0 {
		return nil
	}
	c := cursor.NewBufferCursor(row.RawValue)
	cn, err := ReadCNode(c)
	if err != nil {
		return errors.Wrap(err, "C row")
	}
	s.CNodes[string(row.RawKey[1:])] = cn
	return nil
}

func (s *Store) handleMP(row *Row) error {
	if len(row.RawKey) < 9 {
		return errors.Errorf("M/P row: key too short (%d bytes)", len(row.RawKey))
	}
	oid := binary.BigEndian.Uint64(row.RawKey[1:9])
	sep := row.RawKey[9]
	rest := string(row.RawKey[10:])

	entry := &MPEntry{ObjectID: oid, Raw: row.RawValue}
	if sep == '-' {
		entry.SubKey = "-"
		if len(row.RawValue) > 0 {
			c := cursor.NewBufferCursor(row.RawValue)
			fn, err := ReadFNodeValue(c)
			if err == nil {
				entry.FNode = fn
			}
		}
	} else {
		entry.SubKey = rest
		if len(rest) >= 5 && rest[len(rest)-5:] == "_head" && len(row.RawValue) >= 9 {
			// 8 opaque bytes then a type byte; 'I' marks an inode.
			if row.RawValue[8] == 'I' {
				c := cursor.NewBufferCursor(row.RawValue[9:])
				fn, err := ReadFNodeValue(c)
				if err == nil {
					entry.FNode = fn
				}
			}
		}
	}
	s.MP = append(s.MP, entry)
	return nil
}

// ReadFNodeValue decodes a header-less FNode-like CephFS inode record: in
// the M/P table it reads only the leading varint ino, varint size and
// UTime mtime, without requiring the BlueFS block header (these rows are
// plain bufferlist-encoded, not BlueFS transaction payloads). No extent
// list is decoded.
func ReadFNodeValue(c cursor.Cursor) (*FNode, error) {
	ino, err := cursor.VarInt(c)
	if err != nil {
		return nil, err
	}
	size, err := cursor.VarInt(c)
	if err != nil {
		return nil, err
	}
	mtime, err := cursor.ReadUTime(c)
	if err != nil {
		return nil, err
	}
	return &FNode{Ino: ino, Size: size, Mtime: mtime}, nil
}

func (s *Store) handleB(row *Row) error {
	key := string(row.RawKey[1:])
	s.BMeta[key] = ReadIntOfLength(row.RawValue)
	return nil
}

func (s *Store) handleb(row *Row) error {
	if len(row.RawKey) < 9 {
		return errors.Errorf("b row: key too short")
	}
	offset := binary.BigEndian.Uint64(row.RawKey[1:9])
	s.BBitmap[offset] = row.RawValue
	return nil
}
