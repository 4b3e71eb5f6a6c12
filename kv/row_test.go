package kv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDumpDedupesBySeq(t *testing.T) {
	dump := "'53' seq:1, type:1 => 01\n" +
		"'53' seq:5, type:1 => 02\n" +
		"garbage line without match\n" +
		"'54' seq:2, type:1 => 03\n"
	rows, err := LoadDump(strings.NewReader(dump))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, byte(0x02), rows[0].RawValue[0])
	require.EqualValues(t, 5, rows[0].Seq)
}

func TestLoadDumpEmptyValue(t *testing.T) {
	dump := "'4f00' seq:1, type:1 => \n"
	rows, err := LoadDump(strings.NewReader(dump))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Empty(t, rows[0].RawValue)
	require.Equal(t, byte('O'), rows[0].Prefix)
}
