package image

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImageSeekTellRead(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "img")
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	img, err := Open(f.Name(), 4)
	require.NoError(t, err)
	defer img.Close()

	require.EqualValues(t, 12, img.Len())
	require.EqualValues(t, 0, img.Tell())

	require.NoError(t, img.Seek(2))
	b, err := img.Read(3)
	require.NoError(t, err)
	require.Equal(t, "678", string(b))
	require.EqualValues(t, 5, img.Tell())
}

func TestImageReadPastEndFails(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "img")
	require.NoError(t, err)
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	img, err := Open(f.Name(), 0)
	require.NoError(t, err)
	defer img.Close()

	_, err = img.Read(10)
	require.Error(t, err)
}
