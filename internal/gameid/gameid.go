// Package gameid mints identifiers for hands. An id is UUIDv7-shaped,
// a 48-bit millisecond timestamp followed by random bits, encoded as 26
// characters of Crockford base32 so a sorted game log reads in play
// order.
package gameid

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Crockford's base32 alphabet, lowercased.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of every generated id.
const Length = 26

// New returns a fresh id for the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a fresh id whose timestamp prefix encodes ts. Ids
// minted at later timestamps always sort after earlier ones.
func NewAt(ts time.Time) string {
	var id [16]byte

	ms := uint64(ts.UnixMilli())
	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)

	_, _ = rand.Read(id[6:])
	id[6] = (id[6] & 0x0f) | 0x70 // version 7
	id[8] = (id[8] & 0x3f) | 0x80 // RFC 4122 variant

	return encode(id)
}

// encode packs 128 bits into 26 base32 characters, most significant
// first. The top two bits of the first character are always zero.
func encode(id [16]byte) string {
	hi := binary.BigEndian.Uint64(id[:8])
	lo := binary.BigEndian.Uint64(id[8:])

	var out [Length]byte
	for i := Length - 1; i >= 0; i-- {
		out[i] = alphabet[lo&31]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(out[:])
}
