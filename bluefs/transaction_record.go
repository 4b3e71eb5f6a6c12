package bluefs

import (
	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// TransactionRecord is one on-disk transaction-log entry: a block header,
// the superblock UUID (checked for equality), a sequence number, the
// transaction body, a CRC, padding to the header's end offset, and 16
// trailing opaque bytes.
type TransactionRecord struct {
	Header      *cursor.BlockHeader
	UUID        cursor.UUID
	Seq         uint64
	Transaction *Transaction
	CRC         uint32
}

// ReadTransactionRecord decodes one TransactionRecord, verifying that its
// embedded UUID matches expectUUID (the BlueFS superblock UUID).
func ReadTransactionRecord(c cursor.Cursor, expectUUID cursor.UUID) (*TransactionRecord, error) {
	hdr, err := cursor.ReadBlockHeader(c)
	if err != nil {
		return nil, err
	}
	u, err := cursor.ReadUUID(c)
	if err != nil {
		return nil, errors.Wrap(err, "transaction record uuid")
	}
	if !u.Equal(expectUUID) {
		return nil, errors.Wrapf(cursor.ErrDecodeMismatch, "transaction uuid %s does not match superblock uuid %s", u, expectUUID)
	}
	seq, err := cursor.FixedUint(c, 8, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "transaction record seq")
	}
	txn, err := ReadTransaction(c)
	if err != nil {
		return nil, errors.Wrap(err, "transaction record body")
	}
	crc, err := cursor.FixedUint(c, 4, cursor.LittleEndian)
	if err != nil {
		return nil, errors.Wrap(err, "transaction record crc")
	}
	if c.Tell() != hdr.EndOffset {
		padLen := hdr.EndOffset - c.Tell()
		if padLen < 0 {
			return nil, errors.Wrap(cursor.ErrDecodeMismatch, "transaction record overran header end")
		}
		if _, err := c.Read(int(padLen)); err != nil {
			return nil, errors.Wrap(err, "transaction record padding")
		}
	}
	if _, err := c.Read(16); err != nil {
		return nil, errors.Wrap(err, "transaction record trailing bytes")
	}
	return &TransactionRecord{Header: hdr, UUID: u, Seq: seq, Transaction: txn, CRC: uint32(crc)}, nil
}
