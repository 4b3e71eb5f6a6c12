package object

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fbausch/vampyr/cursor"
	"github.com/fbausch/vampyr/kv"
)

// fakeImage wraps a BufferCursor with padding so physical-extent offsets
// can be placed anywhere within it, standing in for the on-disk image.
func fakeImage(data []byte, minLen int64) *cursor.BufferCursor {
	if int64(len(data)) < minLen {
		padded := make([]byte, minLen)
		copy(padded, data)
		data = padded
	}
	return cursor.NewBufferCursor(data)
}

func TestReconstructWritesBodyAndDigest(t *testing.T) {
	payload := []byte("HelloWorld")
	img := make([]byte, 64)
	copy(img[20:30], payload)
	c := fakeImage(img, 64)

	onode := &kv.ONode{
		Size: uint64(len(payload)),
		LogicalExtents: []kv.LogicalExtent{
			{
				LogicalOffset: 0,
				BlobOffset:    0,
				Length:        uint64(len(payload)),
				Blob: &kv.Blob{
					Extents: []kv.PhysicalExtent{{Offset: 20, Length: uint64(len(payload))}},
				},
			},
		},
	}
	row := &kv.ObjectRow{
		Key:   &kv.ObjectNameKey{OID: "foo", Stripe: "0000000000000000"},
		ONode: onode,
	}

	outDir := t.TempDir()
	rep, err := Reconstruct(c, row, outDir)
	require.NoError(t, err)
	require.Equal(t, "foo", rep.OID)
	require.EqualValues(t, len(payload), rep.Written)

	body, err := os.ReadFile(filepath.Join(outDir, "foo", "object_0000000000000000"))
	require.NoError(t, err)
	require.Equal(t, payload, body)

	digest, err := os.ReadFile(filepath.Join(outDir, "foo", "md5_object_0000000000000000"))
	require.NoError(t, err)
	require.Equal(t, rep.Digest, string(digest))

	_, err = os.Stat(filepath.Join(outDir, "foo", "vampyrmeta_0000000000000000"))
	require.NoError(t, err)
}

func TestReconstructZeroPadsUnderrun(t *testing.T) {
	payload := []byte("AB")
	img := make([]byte, 16)
	copy(img[0:2], payload)
	c := fakeImage(img, 16)

	onode := &kv.ONode{
		Size: 5, // extents only cover 2 of 5 bytes
		LogicalExtents: []kv.LogicalExtent{
			{
				LogicalOffset: 0,
				BlobOffset:    0,
				Length:        2,
				Blob: &kv.Blob{
					Extents: []kv.PhysicalExtent{{Offset: 0, Length: 2}},
				},
			},
		},
	}
	row := &kv.ObjectRow{
		Key:   &kv.ObjectNameKey{OID: "bar", Stripe: "0000000000000000"},
		ONode: onode,
	}

	outDir := t.TempDir()
	rep, err := Reconstruct(c, row, outDir)
	require.NoError(t, err)
	require.EqualValues(t, 5, rep.Written)

	body, err := os.ReadFile(filepath.Join(outDir, "bar", "object_0000000000000000"))
	require.NoError(t, err)
	require.Equal(t, []byte{'A', 'B', 0, 0, 0}, body)
}

func TestReconstructHoleExtentReadsAsZero(t *testing.T) {
	img := make([]byte, 16)
	c := fakeImage(img, 16)

	onode := &kv.ONode{
		Size: 4,
		LogicalExtents: []kv.LogicalExtent{
			{
				LogicalOffset: 0,
				BlobOffset:    0,
				Length:        4,
				Blob: &kv.Blob{
					Extents: []kv.PhysicalExtent{{Invalid: true, Length: 4}},
				},
			},
		},
	}
	row := &kv.ObjectRow{
		Key:   &kv.ObjectNameKey{OID: "baz", Stripe: "0000000000000000"},
		ONode: onode,
	}

	outDir := t.TempDir()
	rep, err := Reconstruct(c, row, outDir)
	require.NoError(t, err)
	require.EqualValues(t, 4, rep.Written)

	body, err := os.ReadFile(filepath.Join(outDir, "baz", "object_0000000000000000"))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, body)
}

func TestReconstructNilONodeFails(t *testing.T) {
	c := fakeImage(nil, 4)
	row := &kv.ObjectRow{Key: &kv.ObjectNameKey{OID: "missing"}}
	_, err := Reconstruct(c, row, t.TempDir())
	require.Error(t, err)
}
