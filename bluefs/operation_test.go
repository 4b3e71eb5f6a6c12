package bluefs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fbausch/vampyr/cursor"
)

func TestReadOperationDirCreate(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(OpDirCreate))
	l := make([]byte, 4)
	binary.LittleEndian.PutUint32(l, 3)
	buf.Write(l)
	buf.WriteString("db/")

	c := cursor.NewBufferCursor(buf.Bytes())
	op, err := ReadOperation(c)
	require.NoError(t, err)
	require.Equal(t, OpDirCreate, op.Code)
	require.Equal(t, "db/", op.DirName)
}

func TestReadOperationAllocRmNotImplemented(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(OpAllocRm))
	buf.WriteByte(1)
	buf.Write(make([]byte, 8))
	buf.Write(make([]byte, 8))

	c := cursor.NewBufferCursor(buf.Bytes())
	_, err := ReadOperation(c)
	require.ErrorIs(t, err, cursor.ErrNotImplementedVersion)
}

func TestOpCodeString(t *testing.T) {
	require.Equal(t, "OP_INIT", OpInit.String())
	require.Equal(t, "OP_UNKNOWN", OpCode(99).String())
}
