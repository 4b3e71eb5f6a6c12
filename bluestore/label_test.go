package bluestore

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fbausch/vampyr/cursor"
)

// buildLabel builds a well-formed label whose binary uuid and tag-embedded
// uuid text agree, unless mismatchUUID is true.
func buildLabel(t *testing.T, meta map[string]string, mismatchUUID bool) []byte {
	t.Helper()
	id := uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")

	var body bytes.Buffer
	idBytes := id
	body.Write(idBytes[:])
	le := binary.LittleEndian
	osdLen := make([]byte, 8)
	le.PutUint64(osdLen, 1024)
	body.Write(osdLen)
	body.Write(make([]byte, 8)) // fstime
	mainLen := make([]byte, 4)
	le.PutUint32(mainLen, 0)
	body.Write(mainLen) // empty "main" string

	metaCount := make([]byte, 4)
	le.PutUint32(metaCount, uint32(len(meta)))
	body.Write(metaCount)
	for k, v := range meta {
		writeStr(&body, k)
		writeStr(&body, v)
	}

	tagUUID := id
	if mismatchUUID {
		tagUUID = uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	}

	var out bytes.Buffer
	tag := make([]byte, 60)
	copy(tag, "bluestore block device\n")
	copy(tag[tagUUIDStart:tagUUIDEnd], tagUUID.String())
	tag[59] = '\n'
	out.Write(tag)
	out.WriteByte(1) // version
	out.WriteByte(1) // compat
	blen := make([]byte, 4)
	le.PutUint32(blen, uint32(body.Len()))
	out.Write(blen)
	out.Write(body.Bytes())
	out.Write([]byte{0, 0, 0, 0}) // crc
	pad := 0x1000 - out.Len()
	require.True(t, pad >= 0)
	out.Write(make([]byte, pad))
	return out.Bytes()
}

func writeStr(buf *bytes.Buffer, s string) {
	l := make([]byte, 4)
	binary.LittleEndian.PutUint32(l, uint32(len(s)))
	buf.Write(l)
	buf.WriteString(s)
}

func TestParseLabelNoMeta(t *testing.T) {
	data := buildLabel(t, nil, false)
	c := cursor.NewBufferCursor(data)
	// osd_length equals the image size, so there is no volume slack.
	l, err := ParseLabel(c, 1024)
	require.NoError(t, err)
	require.EqualValues(t, 1024, l.OSDLength)
	require.Nil(t, l.VolumeSlackStart)
}

func TestParseLabelWithMeta(t *testing.T) {
	data := buildLabel(t, map[string]string{"ceph_version": "17.2.0"}, false)
	c := cursor.NewBufferCursor(data)
	l, err := ParseLabel(c, 2048)
	require.NoError(t, err)
	require.Equal(t, "17.2.0", l.Meta["ceph_version"])
	require.NotNil(t, l.VolumeSlackStart)
	require.EqualValues(t, 1024, *l.VolumeSlackStart)
}

func TestParseLabelBadMagic(t *testing.T) {
	data := buildLabel(t, nil, false)
	data[0] = 'X'
	c := cursor.NewBufferCursor(data)
	_, err := ParseLabel(c, int64(len(data)))
	require.Error(t, err)
}

func TestParseLabelUUIDMismatch(t *testing.T) {
	data := buildLabel(t, nil, true)
	c := cursor.NewBufferCursor(data)
	_, err := ParseLabel(c, int64(len(data)))
	require.ErrorIs(t, err, cursor.ErrUnexpectedLabel)
}
