// Package bluestore decodes the BlueStore block-device label stored at the
// very start of an OSD image.
package bluestore

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

const (
	labelMagic   = "bluestore block device\n"
	labelLength  = 60
	superblockAt = 0x1000
	// tagUUIDStart/tagUUIDEnd bound the 36-character canonical UUID text
	// embedded in the label tag, following the 23-byte magic prefix.
	tagUUIDStart = 23
	tagUUIDEnd   = 59
)

// Label is the decoded BlueStore label.
type Label struct {
	Start             int64
	ASCIITag          string
	UUID              cursor.UUID
	OSDLength         uint64
	LastUsed          cursor.UTime
	Main              string
	Meta              map[string]string
	CRC               uint32
	End               int64
	LabelSlack        []byte
	VolumeSlackStart  *int64
}

// ParseLabel reads the BlueStore label at the cursor's current position
// (conventionally offset 0). imageSize is the total logical size of the
// image (cursor.Len() minus any base offset already applied by the
// cursor), used to range-check osd_length and to compute volume slack.
func ParseLabel(c cursor.Cursor, imageSize int64) (*Label, error) {
	l := &Label{Start: c.Tell()}

	tag, err := cursor.FixedString(c, labelLength)
	if err != nil {
		return nil, errors.Wrap(err, "bluestore label tag")
	}
	if tag[0:23] != labelMagic[0:23] {
		return nil, errors.Wrapf(cursor.ErrUnexpectedLabel, "bad magic tag %q", tag[0:23])
	}
	if tag[59] != '\n' {
		return nil, errors.Wrap(cursor.ErrUnexpectedLabel, "label missing trailing newline")
	}
	l.ASCIITag = tag

	tagUUID, err := uuid.Parse(tag[tagUUIDStart:tagUUIDEnd])
	if err != nil {
		return nil, errors.Wrap(err, "bluestore label tag uuid")
	}

	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, errors.Wrap(err, "bluestore label header")
	}

	u, err := cursor.ReadUUID(c)
	if err != nil {
		return nil, errors.Wrap(err, "bluestore label uuid")
	}
	l.UUID = u
	if cursor.UUID(tagUUID) != l.UUID {
		return nil, errors.Wrapf(cursor.ErrUnexpectedLabel, "tag uuid %s != label uuid %s", tagUUID, l.UUID)
	}

	osdLength, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "bluestore label osd_length")
	}
	if int64(osdLength) > imageSize {
		return nil, errors.Wrapf(cursor.ErrOutOfRange, "osd_length 0x%x exceeds image size 0x%x", osdLength, imageSize)
	}
	l.OSDLength = osdLength
	if int64(osdLength) < imageSize {
		vs := int64(osdLength)
		l.VolumeSlackStart = &vs
	}

	ut, err := cursor.ReadUTime(c)
	if err != nil {
		return nil, errors.Wrap(err, "bluestore label fstime")
	}
	l.LastUsed = ut

	main, err := cursor.String(c)
	if err != nil {
		return nil, errors.Wrap(err, "bluestore label main")
	}
	l.Main = main

	pos := c.Tell()
	meta, metaErr := readStringDict(c)
	if metaErr != nil {
		// Tolerate a malformed/absent metadata dict by rolling back,
		// mirroring osd.py's UnicodeDecodeError rollback.
		if err := c.Seek(pos); err != nil {
			return nil, errors.Wrap(err, "bluestore label metadata rollback")
		}
		l.Meta = map[string]string{}
	} else {
		l.Meta = meta
	}

	if err := hdr.CheckEnd(c); err != nil {
		return nil, errors.Wrap(err, "bluestore label end offset")
	}

	crc, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "bluestore label crc")
	}
	l.CRC = uint32(crc)
	l.End = c.Tell()

	slackLen := superblockAt - l.End
	if slackLen < 0 {
		return nil, errors.Wrapf(cursor.ErrDecodeMismatch, "label end offset %d beyond superblock offset", l.End)
	}
	slack, err := c.Read(int(slackLen))
	if err != nil {
		return nil, errors.Wrap(err, "bluestore label slack")
	}
	l.LabelSlack = slack

	return l, nil
}

// readStringDict decodes a u32-count-prefixed sequence of string→string
// pairs, mirroring CephStringDict in the original source.
func readStringDict(c cursor.Cursor) (map[string]string, error) {
	n, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := uint64(0); i < n; i++ {
		k, err := cursor.String(c)
		if err != nil {
			return nil, err
		}
		v, err := cursor.String(c)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
