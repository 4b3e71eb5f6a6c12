package decode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fbausch/vampyr/cursor"
)

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func blockHeader(bodyLen uint32) []byte {
	return append([]byte{1, 1}, le32(bodyLen)...)
}

func buildCrushBlob() []byte {
	var buf bytes.Buffer
	buf.Write(le32(crushMagic))
	return buf.Bytes()
}

func TestDecodeOSDMap(t *testing.T) {
	var buf bytes.Buffer
	crush := buildCrushBlob()

	var body bytes.Buffer
	body.Write(make([]byte, 16))        // fsid
	body.Write(le32(7))                 // epoch
	body.Write(le32(1700000000))        // modified.seconds
	body.Write(le32(0))                 // modified.nanos
	body.Write(le32(uint32(len(crush)))) // crush bufferlist length
	body.Write(crush)

	buf.Write(blockHeader(uint32(body.Len())))
	buf.Write(body.Bytes())

	c := cursor.NewBufferCursor(buf.Bytes())
	om, err := DecodeOSDMap(c)
	require.NoError(t, err)
	require.EqualValues(t, 7, om.Epoch)
	require.EqualValues(t, 1700000000, om.Modified.Seconds)
	require.Equal(t, crush, om.CrushBlob)
	require.Contains(t, om.Report(), "epoch=7")
}

func TestDecodeOSDMapBadCrushMagic(t *testing.T) {
	var buf bytes.Buffer
	var body bytes.Buffer
	body.Write(make([]byte, 16))
	body.Write(le32(1))
	body.Write(le32(0))
	body.Write(le32(0))
	body.Write(le32(4))
	body.Write(le32(0xdeadbeef))

	buf.Write(blockHeader(uint32(body.Len())))
	buf.Write(body.Bytes())

	c := cursor.NewBufferCursor(buf.Bytes())
	_, err := DecodeOSDMap(c)
	require.ErrorIs(t, err, cursor.ErrUnexpectedMagic)
}

func TestDecodeIncOSDMapNoCrush(t *testing.T) {
	var buf bytes.Buffer
	var body bytes.Buffer
	body.Write(make([]byte, 16))
	body.Write(le32(9))
	body.Write(le32(1700000001))
	body.Write(le32(0))
	body.WriteByte(0) // no crush present

	buf.Write(blockHeader(uint32(body.Len())))
	buf.Write(body.Bytes())

	c := cursor.NewBufferCursor(buf.Bytes())
	im, err := DecodeIncOSDMap(c)
	require.NoError(t, err)
	require.EqualValues(t, 9, im.Epoch)
	require.False(t, im.HasCrush)
	require.Nil(t, im.CrushBlob)
}

func TestDecodeIncOSDMapWithCrush(t *testing.T) {
	crush := buildCrushBlob()
	var buf bytes.Buffer
	var body bytes.Buffer
	body.Write(make([]byte, 16))
	body.Write(le32(10))
	body.Write(le32(1700000002))
	body.Write(le32(0))
	body.WriteByte(1) // crush present
	body.Write(le32(uint32(len(crush))))
	body.Write(crush)

	buf.Write(blockHeader(uint32(body.Len())))
	buf.Write(body.Bytes())

	c := cursor.NewBufferCursor(buf.Bytes())
	im, err := DecodeIncOSDMap(c)
	require.NoError(t, err)
	require.True(t, im.HasCrush)
	require.Equal(t, crush, im.CrushBlob)
}

func TestDecodeOSDSuperblock(t *testing.T) {
	var buf bytes.Buffer
	var body bytes.Buffer
	body.Write(make([]byte, 16)) // cluster fsid
	body.Write(make([]byte, 16)) // osd fsid
	body.Write(le32(3))          // whoami
	body.Write(le32(42))         // current_epoch
	body.Write(le32(1))          // oldest_map
	body.Write(le32(42))         // newest_map

	buf.Write(blockHeader(uint32(body.Len())))
	buf.Write(body.Bytes())

	c := cursor.NewBufferCursor(buf.Bytes())
	sb, err := DecodeOSDSuperblock(c)
	require.NoError(t, err)
	require.EqualValues(t, 3, sb.WholeID)
	require.EqualValues(t, 42, sb.CurrentEpoch)
	require.Contains(t, sb.Report(), "whoami=3")
}

func TestDecodeRBDID(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(le32(6))
	buf.WriteString("abcdef")

	c := cursor.NewBufferCursor(buf.Bytes())
	id, err := DecodeRBDID(c)
	require.NoError(t, err)
	require.Equal(t, "abcdef", id.InternalID)
	require.Equal(t, "rbd_data.abcdef", id.DataDirName())
}

func TestDecodeMDSInotable(t *testing.T) {
	var buf bytes.Buffer
	var body bytes.Buffer
	body.Write(varint(1)) // version
	body.Write(varint(1)) // free range count
	body.Write(varint(0x1000))
	body.Write(varint(0x10))

	buf.Write(blockHeader(uint32(body.Len())))
	buf.Write(body.Bytes())

	c := cursor.NewBufferCursor(buf.Bytes())
	tbl, err := DecodeMDSInotable(c)
	require.NoError(t, err)
	require.EqualValues(t, 1, tbl.Version)
	require.Len(t, tbl.FreeRanges, 1)
	require.EqualValues(t, 0x1000, tbl.FreeRanges[0].First)
}

func TestReadFSLogEntry(t *testing.T) {
	var buf bytes.Buffer
	var body bytes.Buffer
	body.Write(le32(5))        // type
	body.Write(varint(100))    // seq
	body.Write(le32(1700000003))
	body.Write(le32(0))

	buf.Write(blockHeader(uint32(body.Len())))
	buf.Write(body.Bytes())

	c := cursor.NewBufferCursor(buf.Bytes())
	e, err := ReadFSLogEntry(c)
	require.NoError(t, err)
	require.EqualValues(t, 5, e.Type)
	require.EqualValues(t, 100, e.Seq)
}

func varint(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}
