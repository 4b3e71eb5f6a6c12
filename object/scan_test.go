package object

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fbausch/vampyr/cursor"
)

func buildOSDMapBody(epoch uint32) []byte {
	var body bytes.Buffer
	body.Write(make([]byte, 16)) // fsid
	body.Write(le32b(epoch))
	body.Write(le32b(1700000000))
	body.Write(le32b(0))
	crush := le32b(0x00010000) // crush magic
	body.Write(le32b(uint32(len(crush))))
	body.Write(crush)

	var out bytes.Buffer
	out.WriteByte(1)
	out.WriteByte(1)
	out.Write(le32b(uint32(body.Len())))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestScanFindsOSDMapAtWindowStart(t *testing.T) {
	osdmap := buildOSDMapBody(11)
	buf := make([]byte, ScanWindow+16)
	copy(buf, osdmap)

	img := cursor.NewBufferCursor(buf)
	outDir := t.TempDir()
	require.NoError(t, Scan(img, outDir))

	data, err := os.ReadFile(filepath.Join(outDir, "osdmap", "decoded_11"))
	require.NoError(t, err)
	require.Contains(t, string(data), "epoch=11")
}

func TestScanIgnoresNonMatchingWindows(t *testing.T) {
	buf := make([]byte, ScanWindow+16) // all zero, no header anywhere
	img := cursor.NewBufferCursor(buf)
	outDir := t.TempDir()
	require.NoError(t, Scan(img, outDir))

	_, err := os.Stat(filepath.Join(outDir, "osdmap"))
	require.True(t, os.IsNotExist(err))
}
