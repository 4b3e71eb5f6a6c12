package kv

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fbausch/vampyr/cursor"
)

// NoShard is the sentinel shard id meaning "this pool is not sharded".
const NoShard = 0x7f

// ObjectNameKey is the decoded form of an O-prefix onode key: the tuple
// (shard, pool_id, hash, namespace, key, name, snap, generation) from
// which the object id and stripe are derived.
type ObjectNameKey struct {
	Shard      int8
	PoolID     int64
	Hash       uint32
	Namespace  string
	Key        string
	Name       string
	Snap       uint64
	Generation uint64
	HasShard   bool // true if this key carries a trailing shard-offset tail

	OID    string
	Stripe string
}

// operator byte following key: '=' means name equals key, '<'/'>' mean a
// separately encoded name follows (name sorts before/after key).
const (
	opLT = '<'
	opEQ = '='
	opGT = '>'
)

// ParseObjectNameKey decodes an O-prefix key, mirroring KVObjectNameKey:
// shard, pool, hash, namespace, key (always present, escaped), a mandatory
// one-byte operator, then name (re-read as a separate escaped string only
// when the operator isn't '='), snap, and generation. oid/stripe are
// derived from key, matching the original's _set_oid_and_stripe.
func ParseObjectNameKey(c cursor.Cursor) (*ObjectNameKey, error) {
	shardB, err := c.Read(1)
	if err != nil {
		return nil, errors.Wrap(err, "object key shard")
	}
	poolRaw, err := cursor.FixedUint(c, 8, cursor.BigEndian)
	if err != nil {
		return nil, errors.Wrap(err, "object key pool")
	}
	hashRaw, err := cursor.FixedUint(c, 4, cursor.BigEndian)
	if err != nil {
		return nil, errors.Wrap(err, "object key hash")
	}

	k := &ObjectNameKey{
		Shard:  int8(int(shardB[0]) - 0x80),
		PoolID: int64(poolRaw ^ 0x8000000000000000),
		Hash:   uint32(hashRaw),
	}

	nspace, err := cursor.EscapedString(c)
	if err != nil {
		return nil, errors.Wrap(err, "object key namespace")
	}
	k.Namespace = nspace

	key, err := cursor.EscapedString(c)
	if err != nil {
		return nil, errors.Wrap(err, "object key key")
	}
	k.Key = key

	opB, err := c.Read(1)
	if err != nil {
		return nil, errors.Wrap(err, "object key operator")
	}
	if opB[0] == opEQ {
		k.Name = key
	} else {
		name, err := cursor.EscapedString(c)
		if err != nil {
			return nil, errors.Wrap(err, "object key name")
		}
		k.Name = name
	}

	snap, err := cursor.FixedUint(c, 8, cursor.BigEndian)
	if err != nil {
		return nil, errors.Wrap(err, "object key snap")
	}
	k.Snap = snap

	gen, err := cursor.FixedUint(c, 8, cursor.BigEndian)
	if err != nil {
		return nil, errors.Wrap(err, "object key generation")
	}
	k.Generation = gen

	if _, err := c.Read(1); err != nil { // trailing 'o'
		return nil, errors.Wrap(err, "object key trailing marker")
	}

	k.setOIDAndStripe()
	return k, nil
}

// setOIDAndStripe derives the oid and rados striping suffix from Key,
// mirroring KVObjectNameKey._set_oid_and_stripe: keys of the form
// "<oid>.NNNNNNNNNNNNNNNN" (16 hex digits) are striped rados objects, and
// the special case "<oid>.inode" is CephFS inode metadata, not a stripe.
func (k *ObjectNameKey) setOIDAndStripe() {
	key := k.Key
	if len(key) > 17 && key[len(key)-17] == '.' && key[len(key)-4:] != "node" {
		suffix := key[len(key)-16:]
		allHex := true
		for _, r := range suffix {
			if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
				allHex = false
				break
			}
		}
		if allHex {
			k.OID = key[:len(key)-17]
			k.Stripe = suffix
			return
		}
	}
	k.OID = key
	k.Stripe = "0000000000000000"
}

func (k *ObjectNameKey) String() string {
	return fmt.Sprintf("oid=%s stripe=%s ns=%s snap=%d gen=%d", k.OID, k.Stripe, k.Namespace, k.Snap, k.Generation)
}
