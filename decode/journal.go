package decode

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// FSLogEventType identifies the kind of a CephFS journal log entry.
type FSLogEventType uint32

// FSLogEntry is one CephFS MDS journal log-event header: enough to report
// its type, sequence and stamp without descending into its type-specific
// metablob payload.
type FSLogEntry struct {
	Type  FSLogEventType
	Seq   uint64
	Stamp cursor.UTime
}

// ReadFSLogEntry decodes one journal log-event header.
func ReadFSLogEntry(c cursor.Cursor) (*FSLogEntry, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "fs log entry header")
	}
	t, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "fs log entry type")
	}
	seq, err := cursor.VarInt(c)
	if err != nil {
		return nil, errors.Wrap(err, "fs log entry seq")
	}
	stamp, err := cursor.ReadUTime(c)
	if err != nil {
		return nil, errors.Wrap(err, "fs log entry stamp")
	}
	_ = hdr
	return &FSLogEntry{Type: FSLogEventType(t), Seq: seq, Stamp: stamp}, nil
}

// Journal is the decoded CephFS journal header object (such as
// "200.00000000"): identity plus a trimmed log-event count. Like
// FSLogEntry, it is an exported decoder that object.Reconstruct does not
// call.
type Journal struct {
	LayoutFL uint32
	Trimmed  uint32
}

// DecodeJournal decodes a journal header object's concatenated body.
func DecodeJournal(c cursor.Cursor) (*Journal, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "journal header")
	}
	layout, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "journal layout flags")
	}
	trimmed, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "journal trimmed count")
	}
	_ = hdr
	return &Journal{LayoutFL: uint32(layout), Trimmed: uint32(trimmed)}, nil
}

func (j *Journal) Report() string {
	return fmt.Sprintf("journal layout_flags=0x%x trimmed=%d\n", j.LayoutFL, j.Trimmed)
}

func (e *FSLogEntry) Report() string {
	return fmt.Sprintf("fs_log_entry type=%d seq=%d stamp=%d.%09d\n", e.Type, e.Seq, e.Stamp.Seconds, e.Stamp.Nanos)
}
