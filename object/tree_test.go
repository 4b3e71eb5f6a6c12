package object

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fbausch/vampyr/kv"
)

func le32b(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func varintB(v uint64) []byte {
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

func buildBacktrace(ino uint64, dirIno uint64, name string) []byte {
	var body bytes.Buffer
	body.Write(varintB(ino))
	body.Write(varintB(1)) // one ancestor
	body.Write(varintB(dirIno))
	body.Write(le32b(uint32(len(name))))
	body.WriteString(name)

	var out bytes.Buffer
	out.WriteByte(2) // version
	out.WriteByte(2) // compat
	out.Write(le32b(uint32(body.Len())))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestDecodeBacktrace(t *testing.T) {
	raw := buildBacktrace(0x100, 0x1, "myfile")
	bt, err := DecodeBacktrace(raw)
	require.NoError(t, err)
	require.EqualValues(t, 0x100, bt.Ino)
	require.Len(t, bt.Ancestors, 1)
	require.EqualValues(t, 0x1, bt.Ancestors[0].DirIno)
	require.Equal(t, "myfile", bt.Ancestors[0].Name)
}

func TestBuildTreeCreatesLinks(t *testing.T) {
	raw := buildBacktrace(0x100, 0x1, "myfile")
	rows := []*kv.ObjectRow{
		{
			Key: &kv.ObjectNameKey{OID: "100.00000000"},
			ONode: &kv.ONode{
				Xattrs: map[string][]byte{"_parent": raw},
			},
		},
	}

	outDir := t.TempDir()
	require.NoError(t, BuildTree(rows, outDir))

	selfDir := filepath.Join(outDir, "100")
	parentDir := filepath.Join(outDir, "1")
	require.DirExists(t, selfDir)
	require.DirExists(t, parentDir)

	link, err := os.Readlink(filepath.Join(selfDir, "parent"))
	require.NoError(t, err)
	require.Equal(t, parentDir, link)

	childLink, err := os.Readlink(filepath.Join(parentDir, "child_myfile"))
	require.NoError(t, err)
	require.Equal(t, selfDir, childLink)

	require.FileExists(t, filepath.Join(parentDir, "self_myfile"))
}

func TestBuildTreeSkipsRowsWithoutParentXattr(t *testing.T) {
	rows := []*kv.ObjectRow{
		{Key: &kv.ObjectNameKey{OID: "nobt"}, ONode: &kv.ONode{Xattrs: map[string][]byte{}}},
		{Key: &kv.ObjectNameKey{OID: "tombstone"}, ONode: nil},
	}
	outDir := t.TempDir()
	require.NoError(t, BuildTree(rows, outDir))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
