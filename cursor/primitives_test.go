package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarInt(t *testing.T) {
	c := NewBufferCursor([]byte{0xE5, 0x8E, 0x26})
	v, err := VarInt(c)
	require.NoError(t, err)
	require.EqualValues(t, 624485, v)
	require.EqualValues(t, 3, c.Tell())
}

func TestVarIntLowZ(t *testing.T) {
	c := NewBufferCursor([]byte{0x1C})
	v, err := VarIntLowZ(c)
	require.NoError(t, err)
	require.EqualValues(t, 7, v)

	c2 := NewBufferCursor([]byte{0x1F})
	v2, err := VarIntLowZ(c2)
	require.NoError(t, err)
	require.EqualValues(t, 28672, v2)
}

func TestLBA(t *testing.T) {
	c := NewBufferCursor([]byte{0x08, 0x00, 0x00, 0x00})
	v, err := LBA(c)
	require.NoError(t, err)
	require.EqualValues(t, 0x4000, v)
}

func TestBlockHeaderUnexpectedMagic(t *testing.T) {
	c := NewBufferCursor([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	_, err := ReadBlockHeader(c)
	require.ErrorIs(t, err, ErrUnexpectedMagic)
}

func TestBlockHeaderEndOffset(t *testing.T) {
	c := NewBufferCursor([]byte{0x01, 0x01, 0x02, 0x00, 0x00, 0x00, 0xAA, 0xBB})
	hdr, err := ReadBlockHeader(c)
	require.NoError(t, err)
	require.EqualValues(t, 2, hdr.BodyLen)
	_, err = c.Read(2)
	require.NoError(t, err)
	require.NoError(t, hdr.CheckEnd(c))
}

func TestEscapedString(t *testing.T) {
	c := NewBufferCursor([]byte("hello!"))
	s, err := EscapedString(c)
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestEscapedStringWithEscape(t *testing.T) {
	buf := append([]byte("ab"), '#', 0x00, 0x41, '!')
	c := NewBufferCursor(buf)
	s, err := EscapedString(c)
	require.NoError(t, err)
	require.Equal(t, "abA", s)
}

func TestFixedUintRoundTrip(t *testing.T) {
	c := NewBufferCursor([]byte{0x01, 0x02, 0x03, 0x04})
	v, err := FixedUint(c, 4, LittleEndian)
	require.NoError(t, err)
	require.EqualValues(t, 0x04030201, v)

	c2 := NewBufferCursor([]byte{0x01, 0x02, 0x03, 0x04})
	v2, err := FixedUint(c2, 4, BigEndian)
	require.NoError(t, err)
	require.EqualValues(t, 0x01020304, v2)
}
