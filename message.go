package doubleratchet

import (
	"encoding/binary"
	"fmt"
)

const (
	// WireVersion is the first byte of every encoded message.
	WireVersion byte = 1

	// HeaderSize is the size of an encoded MessageHeader.
	HeaderSize = 32 + 4 + 4

	minMessageSize = 1 + HeaderSize + TagSize
)

// Message is a single message exchanged by the parties.
type Message struct {
	Header MessageHeader

	// Ciphertext is the AEAD output, ending with the TagSize authentication tag.
	Ciphertext []byte
}

// Tag returns the trailing authentication tag of the ciphertext.
func (m Message) Tag() []byte {
	if len(m.Ciphertext) < TagSize {
		return nil
	}
	return m.Ciphertext[len(m.Ciphertext)-TagSize:]
}

// MarshalBinary encodes the message as version || header || ciphertext || tag.
func (m Message) MarshalBinary() ([]byte, error) {
	if len(m.Ciphertext) < TagSize {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrMalformedMessage)
	}
	out := make([]byte, 0, 1+HeaderSize+len(m.Ciphertext))
	out = append(out, WireVersion)
	out = append(out, m.Header.Encode()...)
	out = append(out, m.Ciphertext...)
	return out, nil
}

// UnmarshalBinary decodes a message produced by MarshalBinary. The ciphertext is copied.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) < minMessageSize {
		return fmt.Errorf("%w: got %d bytes, want at least %d", ErrMalformedMessage, len(data), minMessageSize)
	}
	if data[0] != WireVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformedMessage, data[0])
	}
	h, err := MessageEncHeader(data[1 : 1+HeaderSize]).Decode()
	if err != nil {
		return err
	}
	m.Header = h
	m.Ciphertext = append([]byte(nil), data[1+HeaderSize:]...)
	return nil
}

// MessageHeader that is prepended to every message.
type MessageHeader struct {
	// DH is the sender's current ratchet public key.
	DH Key

	// N is the number of the message in the sending chain.
	N uint32

	// PN is the length of the previous sending chain.
	PN uint32
}

// Encode the header in the binary format.
func (mh MessageHeader) Encode() MessageEncHeader {
	buf := make([]byte, HeaderSize)
	copy(buf[:32], mh.DH[:])
	binary.BigEndian.PutUint32(buf[32:36], mh.PN)
	binary.BigEndian.PutUint32(buf[36:40], mh.N)
	return buf
}

// EncodeWithAD returns the AEAD associated data binding ad to the header.
func (mh MessageHeader) EncodeWithAD(ad AssociatedData) []byte {
	return append(ad.Encode(), mh.Encode()...)
}

// MessageEncHeader is a binary-encoded representation of a message header.
type MessageEncHeader []byte

// Decode message header out of the binary-encoded representation.
func (mh MessageEncHeader) Decode() (MessageHeader, error) {
	if len(mh) != HeaderSize {
		return MessageHeader{}, fmt.Errorf("%w: encoded message header must be %d bytes, %d given", ErrMalformedMessage, HeaderSize, len(mh))
	}
	var h MessageHeader
	copy(h.DH[:], mh[:32])
	h.PN = binary.BigEndian.Uint32(mh[32:36])
	h.N = binary.BigEndian.Uint32(mh[36:40])
	return h, nil
}
