// Package kv interprets the textual dump of the RocksDB key-value store
// embedded in BlueFS: loading rows, dispatching by prefix byte, and
// decoding the onode/extent/blob graph they describe.
package kv

import (
	"bufio"
	"encoding/hex"
	"io"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// Row is one decoded line of the textual KV dump.
type Row struct {
	Prefix   byte
	RawKey   []byte
	RawValue []byte
	Seq      uint64
}

// dumpLineRE matches one line of `ldb idump --hex` output:
// 'HEXKEY' seq:N, type:T => HEXVALUE
var dumpLineRE = regexp.MustCompile(`^'([0-9A-Fa-f]*)' seq:([0-9]+), type:([0-9]+) => ([0-9A-Fa-f]*)\r?$`)

// LoadDump parses a textual RocksDB dump stream, retaining only the
// highest-sequence row for each distinct raw key.
func LoadDump(r io.Reader) ([]*Row, error) {
	byKey := map[string]*Row{}
	var order []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		m := dumpLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		keyBytes, err := hex.DecodeString(m[1])
		if err != nil {
			return nil, errors.Wrapf(err, "kv dump: bad hex key %q", m[1])
		}
		seq, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "kv dump: bad seq %q", m[2])
		}
		valBytes, err := hex.DecodeString(m[4])
		if err != nil {
			return nil, errors.Wrapf(err, "kv dump: bad hex value %q", m[4])
		}
		if len(keyBytes) == 0 {
			continue
		}
		row := &Row{Prefix: keyBytes[0], RawKey: keyBytes, RawValue: valBytes, Seq: seq}

		keyStr := string(keyBytes)
		if existing, ok := byKey[keyStr]; !ok || seq > existing.Seq {
			if !ok {
				order = append(order, keyStr)
			}
			byKey[keyStr] = row
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "kv dump: scan")
	}

	rows := make([]*Row, 0, len(order))
	for _, k := range order {
		rows = append(rows, byKey[k])
	}
	return rows, nil
}
