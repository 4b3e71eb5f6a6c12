package cursor

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// UUID is a raw 16-byte Ceph UUID. Ceph lays these out as plain byte runs,
// so this is not reinterpreted through RFC 4122 variant/version bits; the
// google/uuid type is only used to get a canonical string formatter.
type UUID [16]byte

// ReadUUID reads 16 raw bytes into a UUID.
func ReadUUID(c Cursor) (UUID, error) {
	b, err := c.Read(16)
	if err != nil {
		return UUID{}, errors.Wrap(err, "UUID")
	}
	var u UUID
	copy(u[:], b)
	return u, nil
}

func (u UUID) String() string {
	return uuid.UUID(u).String()
}

func (u UUID) Equal(other UUID) bool {
	return u == other
}
