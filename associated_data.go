package doubleratchet

import "encoding/binary"

// AssociatedData is authenticated alongside every message but never encrypted.
type AssociatedData []byte

// Encode returns ad prefixed with its 4-byte big-endian length, so that the
// boundary between ad and the header it is joined with is unambiguous.
func (ad AssociatedData) Encode() []byte {
	out := make([]byte, 4, 4+len(ad)+HeaderSize)
	binary.BigEndian.PutUint32(out, uint32(len(ad)))
	return append(out, ad...)
}
