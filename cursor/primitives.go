package cursor

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Endian selects byte order for FixedUint/FixedInt.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

// FixedUint reads exactly n bytes (n must be 1, 2, 4, or 8) and returns the
// unsigned value in the requested byte order.
func FixedUint(c Cursor, n int, endian Endian) (uint64, error) {
	b, err := c.Read(n)
	if err != nil {
		return 0, errors.Wrapf(err, "FixedUint(%d)", n)
	}
	switch n {
	case 1:
		return uint64(b[0]), nil
	case 2:
		if endian == BigEndian {
			return uint64(binary.BigEndian.Uint16(b)), nil
		}
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		if endian == BigEndian {
			return uint64(binary.BigEndian.Uint32(b)), nil
		}
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		if endian == BigEndian {
			return binary.BigEndian.Uint64(b), nil
		}
		return binary.LittleEndian.Uint64(b), nil
	default:
		return 0, errors.Errorf("FixedUint: unsupported width %d", n)
	}
}

// VarInt reads a protobuf-style base-128 varint: low 7 bits of each byte,
// shifted and accumulated, continuing while the high bit is set.
func VarInt(c Cursor) (uint64, error) {
	var value uint64
	var shift uint
	for {
		b, err := c.Read(1)
		if err != nil {
			return 0, errors.Wrap(err, "VarInt")
		}
		value |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return value, nil
		}
		shift += 7
	}
}

// VarIntLowZ reads a VarInt v, then returns (v>>2) << ((v&3)*4). Used for
// lengths and offsets whose low bits are usually zero (extent lengths,
// blob offsets).
func VarIntLowZ(c Cursor) (uint64, error) {
	v, err := VarInt(c)
	if err != nil {
		return 0, errors.Wrap(err, "VarIntLowZ")
	}
	q := v & 3
	return (v >> 2) << (q * 4), nil
}

// LBA decodes a Ceph logical-block-address varint: an initial 32-bit LE
// word whose low 3 bits select a shift/mask pattern, optionally extended
// by further 7-bit groups while the most recently read byte has its high
// bit set.
func LBA(c Cursor) (uint64, error) {
	w, err := FixedUint(c, 4, LittleEndian)
	if err != nil {
		return 0, errors.Wrap(err, "LBA initial word")
	}
	var value uint64
	var shift uint
	var lastByte byte
	switch w & 7 {
	case 0, 2, 4, 6:
		value = (w & 0x7ffffffe) << 11
		shift = 42
	case 1, 5:
		value = (w & 0x7ffffffc) << 14
		shift = 45
	case 3:
		value = (w & 0x7ffffff8) << 17
		shift = 48
	case 7:
		value = (w & 0x7ffffff8) >> 3
		shift = 28
	}
	lastByte = byte(w >> 24)
	for lastByte&0x80 != 0 {
		b, err := c.Read(1)
		if err != nil {
			return 0, errors.Wrap(err, "LBA extension byte")
		}
		value |= uint64(b[0]&0x7f) << shift
		shift += 7
		lastByte = b[0]
	}
	return value, nil
}

// BlockHeader is Ceph's "version, compat version, body length" prefix used
// at the start of almost every encoded structure.
type BlockHeader struct {
	Version   uint8
	Compat    uint8
	BodyLen   uint32
	StartOff  int64
	EndOffset int64
}

// ReadBlockHeader decodes a BlockHeader at the cursor's current position.
// If both Version and Compat are zero, the position did not contain a real
// header and ErrUnexpectedMagic is returned.
func ReadBlockHeader(c Cursor) (*BlockHeader, error) {
	start := c.Tell()
	vb, err := c.Read(1)
	if err != nil {
		return nil, errors.Wrap(err, "BlockHeader version")
	}
	cb, err := c.Read(1)
	if err != nil {
		return nil, errors.Wrap(err, "BlockHeader compat")
	}
	if vb[0] == 0 && cb[0] == 0 {
		return nil, errors.Wrapf(ErrUnexpectedMagic, "block header at offset %d", start)
	}
	blen, err := FixedUint(c, 4, LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "BlockHeader body_len")
	}
	end := c.Tell() + int64(blen)
	return &BlockHeader{
		Version:   vb[0],
		Compat:    cb[0],
		BodyLen:   uint32(blen),
		StartOff:  start,
		EndOffset: end,
	}, nil
}

// CheckEnd verifies the cursor landed exactly at the header's recorded end
// offset, failing with ErrDecodeMismatch otherwise.
func (h *BlockHeader) CheckEnd(c Cursor) error {
	if c.Tell() != h.EndOffset {
		return errors.Wrapf(ErrDecodeMismatch, "expected end offset %d, got %d", h.EndOffset, c.Tell())
	}
	return nil
}

// String reads a u32-length-prefixed UTF-8 string.
func String(c Cursor) (string, error) {
	n, err := FixedUint(c, 4, LittleEndian)
	if err != nil {
		return "", errors.Wrap(err, "String length")
	}
	b, err := c.Read(int(n))
	if err != nil {
		return "", errors.Wrap(err, "String body")
	}
	return string(b), nil
}

// FixedString reads exactly n UTF-8 bytes.
func FixedString(c Cursor, n int) (string, error) {
	b, err := c.Read(n)
	if err != nil {
		return "", errors.Wrapf(err, "FixedString(%d)", n)
	}
	return string(b), nil
}

// UTime is a {seconds, nanos} pair, both stored as u32.
type UTime struct {
	Seconds uint32
	Nanos   uint32
}

// ReadUTime decodes a UTime.
func ReadUTime(c Cursor) (UTime, error) {
	s, err := FixedUint(c, 4, LittleEndian)
	if err != nil {
		return UTime{}, errors.Wrap(err, "UTime seconds")
	}
	n, err := FixedUint(c, 4, LittleEndian)
	if err != nil {
		return UTime{}, errors.Wrap(err, "UTime nanos")
	}
	return UTime{Seconds: uint32(s), Nanos: uint32(n)}, nil
}

// Bufferlist reads a u32-length-prefixed byte run and wraps it in a new
// BufferCursor for nested decoding.
func Bufferlist(c Cursor) (*BufferCursor, error) {
	n, err := FixedUint(c, 4, LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "Bufferlist length")
	}
	b, err := c.Read(int(n))
	if err != nil {
		return nil, errors.Wrap(err, "Bufferlist body")
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return NewBufferCursor(cp), nil
}

// EscapedString reads a Ceph escaped object-name key component: bytes up
// to an unescaped '!' terminator, with '#' and '~' introducing a two-byte
// big-endian escape of the encoded rune.
func EscapedString(c Cursor) (string, error) {
	var out []byte
	for {
		b, err := c.Read(1)
		if err != nil {
			return "", errors.Wrap(err, "EscapedString")
		}
		switch b[0] {
		case '!':
			return string(out), nil
		case '#', '~':
			esc, err := c.Read(2)
			if err != nil {
				return "", errors.Wrap(err, "EscapedString escape sequence")
			}
			v := binary.BigEndian.Uint16(esc)
			out = utf8.AppendRune(out, rune(v))
		default:
			out = append(out, b[0])
		}
	}
}
