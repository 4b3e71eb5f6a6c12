package bluefs

import (
	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// OpCode identifies a BlueFS transaction-log operation.
type OpCode uint8

const (
	OpNone      OpCode = 0
	OpInit      OpCode = 1
	OpAllocAdd  OpCode = 2
	OpAllocRm   OpCode = 3
	OpDirLink   OpCode = 4
	OpDirUnlink OpCode = 5
	OpDirCreate OpCode = 6
	OpDirRemove OpCode = 7
	OpFileUpdate OpCode = 8
	OpFileRemove OpCode = 9
	OpJump      OpCode = 10
	OpJumpSeq   OpCode = 11
)

// names mirrors BlueFSOperationCode.translation_map in the original source.
var names = map[OpCode]string{
	OpNone: "OP_NONE", OpInit: "OP_INIT", OpAllocAdd: "OP_ALLOC_ADD",
	OpAllocRm: "OP_ALLOC_RM", OpDirLink: "OP_DIR_LINK", OpDirUnlink: "OP_DIR_UNLINK",
	OpDirCreate: "OP_DIR_CREATE", OpDirRemove: "OP_DIR_REMOVE",
	OpFileUpdate: "OP_FILE_UPDATE", OpFileRemove: "OP_FILE_REMOVE",
	OpJump: "OP_JUMP", OpJumpSeq: "OP_JUMP_SEQ",
}

func (o OpCode) String() string {
	if n, ok := names[o]; ok {
		return n
	}
	return "OP_UNKNOWN"
}

// Operation is one decoded entry of a transaction's operation stream.
type Operation struct {
	Code OpCode

	AllocID     uint8
	AllocOffset uint64
	AllocLength uint64

	DirName  string
	FileName string
	Ino      uint64

	FNode *FNode

	JumpSeq    uint64
	JumpOffset uint64
}

// ReadOperation decodes one operation, dispatching on its one-byte opcode.
// ALLOC_RM and JUMP_SEQ are recognized but not implemented (matching
// bluefs.py's own NotImplementedError for those two), returning
// ErrNotImplementedVersion after the stream position for the opcode byte
// has already been consumed; callers must treat this like any other
// decode failure and discard the enclosing transaction block.
func ReadOperation(c cursor.Cursor) (*Operation, error) {
	codeb, err := c.Read(1)
	if err != nil {
		return nil, errors.Wrap(err, "operation code")
	}
	op := &Operation{Code: OpCode(codeb[0])}
	switch op.Code {
	case OpNone, OpInit:
		// no payload
	case OpAllocAdd:
		idb, err := c.Read(1)
		if err != nil {
			return nil, errors.Wrap(err, "alloc_add id")
		}
		off, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "alloc_add offset")
		}
		length, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "alloc_add length")
		}
		op.AllocID, op.AllocOffset, op.AllocLength = idb[0], off, length
	case OpAllocRm:
		idb, err := c.Read(1)
		if err != nil {
			return nil, errors.Wrap(err, "alloc_rm id")
		}
		off, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "alloc_rm offset")
		}
		length, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "alloc_rm length")
		}
		op.AllocID, op.AllocOffset, op.AllocLength = idb[0], off, length
		return op, errors.Wrap(cursor.ErrNotImplementedVersion, "ALLOC_RM is not implemented")
	case OpDirLink:
		dir, err := cursor.String(c)
		if err != nil {
			return nil, errors.Wrap(err, "dir_link dir")
		}
		file, err := cursor.String(c)
		if err != nil {
			return nil, errors.Wrap(err, "dir_link file")
		}
		ino, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "dir_link ino")
		}
		op.DirName, op.FileName, op.Ino = dir, file, ino
	case OpDirUnlink:
		dir, err := cursor.String(c)
		if err != nil {
			return nil, errors.Wrap(err, "dir_unlink dir")
		}
		file, err := cursor.String(c)
		if err != nil {
			return nil, errors.Wrap(err, "dir_unlink file")
		}
		op.DirName, op.FileName = dir, file
	case OpDirCreate:
		dir, err := cursor.String(c)
		if err != nil {
			return nil, errors.Wrap(err, "dir_create dir")
		}
		op.DirName = dir
	case OpDirRemove:
		dir, err := cursor.String(c)
		if err != nil {
			return nil, errors.Wrap(err, "dir_remove dir")
		}
		op.DirName = dir
	case OpFileUpdate:
		fn, err := ReadFNode(c)
		if err != nil {
			return nil, errors.Wrap(err, "file_update fnode")
		}
		op.FNode = fn
	case OpFileRemove:
		ino, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "file_remove ino")
		}
		op.Ino = ino
	case OpJump:
		seq, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "jump seq")
		}
		off, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "jump offset")
		}
		op.JumpSeq, op.JumpOffset = seq, off
	case OpJumpSeq:
		seq, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
		if err != nil {
			return nil, errors.Wrap(err, "jump_seq seq")
		}
		op.JumpSeq = seq
		return op, errors.Wrap(cursor.ErrNotImplementedVersion, "JUMP_SEQ is not implemented")
	default:
		return nil, errors.Wrapf(cursor.ErrDecodeMismatch, "unknown bluefs opcode %d", codeb[0])
	}
	return op, nil
}

// Transaction is a length-prefixed sequence of operations filling exactly
// its declared length.
type Transaction struct {
	Ops []*Operation
}

// ReadTransaction decodes a transaction: a u32 byte length followed by
// operations consumed until exactly that many bytes have been read.
func ReadTransaction(c cursor.Cursor) (*Transaction, error) {
	length, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "transaction length")
	}
	start := c.Tell()
	end := start + int64(length)
	t := &Transaction{}
	for c.Tell() < end {
		op, err := ReadOperation(c)
		if op != nil {
			t.Ops = append(t.Ops, op)
		}
		if err != nil {
			return t, err
		}
	}
	if c.Tell() != end {
		return t, errors.Wrapf(cursor.ErrDecodeMismatch, "transaction overran declared length: at %d, want %d", c.Tell(), end)
	}
	return t, nil
}
