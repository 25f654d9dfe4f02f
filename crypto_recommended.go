package doubleratchet

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// TagSize is the size of the authentication tag appended to every ciphertext.
const TagSize = chacha20poly1305.Overhead

const (
	kdfRKInfo  = "doubleratchet/v1/root"
	kdfEncInfo = "doubleratchet/v1/message"

	// Inputs of the chain KDF as recommended by the Signal Double Ratchet paper.
	mkInput = 0x01
	ckInput = 0x02
)

// DefaultCrypto is an implementation of Crypto with cryptographic primitives recommended
// by the Signal Double Ratchet paper. However, some details are different,
// see function comments for details.
type DefaultCrypto struct{}

func (c DefaultCrypto) GenerateDH() (DHPair, error) {
	var pair DHPair
	if _, err := io.ReadFull(rand.Reader, pair.PrivateKey[:]); err != nil {
		return DHPair{}, fmt.Errorf("couldn't generate privKey: %w", err)
	}
	clamp(&pair.PrivateKey)

	pub, err := curve25519.X25519(pair.PrivateKey[:], curve25519.Basepoint)
	if err != nil {
		pair.Wipe()
		return DHPair{}, fmt.Errorf("couldn't derive pubKey: %w", err)
	}
	copy(pair.PublicKey[:], pub)
	return pair, nil
}

// DH rejects low-order public keys, for which X25519 yields the all-zero output.
func (c DefaultCrypto) DH(dhPair DHPair, dhPub Key) (Key, error) {
	var dhOut Key
	out, err := curve25519.X25519(dhPair.PrivateKey[:], dhPub[:])
	if err != nil {
		return dhOut, fmt.Errorf("x25519: %w", err)
	}
	copy(dhOut[:], out)
	wipe(out)
	return dhOut, nil
}

// KdfRK is HKDF-SHA256 with rk as the salt and dhOut as the input key material.
func (c DefaultCrypto) KdfRK(rk, dhOut Key) (rootKey, chainKey Key) {
	var (
		r   = hkdf.New(sha256.New, dhOut[:], rk[:], []byte(kdfRKInfo))
		buf = make([]byte, 64)
	)

	// The only error here is an entropy limit which won't be reached for such a short buffer.
	_, _ = io.ReadFull(r, buf)

	copy(rootKey[:], buf[:32])
	copy(chainKey[:], buf[32:])
	wipe(buf)
	return rootKey, chainKey
}

// KdfCK is HMAC-SHA256 keyed by ck over a single constant byte per output.
func (c DefaultCrypto) KdfCK(ck Key) (chainKey, msgKey Key) {
	h := hmac.New(sha256.New, ck[:])

	h.Write([]byte{ckInput})
	copy(chainKey[:], h.Sum(nil))
	h.Reset()

	h.Write([]byte{mkInput})
	copy(msgKey[:], h.Sum(nil))

	return chainKey, msgKey
}

// Encrypt uses ChaCha20-Poly1305 instead of the AES-256-CBC + HMAC construction from the
// Signal paper. Key and nonce are both expanded from mk, which is single-use,
// so the nonce never repeats under a key.
func (c DefaultCrypto) Encrypt(mk Key, plaintext, associatedData []byte) ([]byte, error) {
	encKey, nonce := c.deriveEncKeys(mk)
	defer encKey.Wipe()

	aead, err := chacha20poly1305.New(encKey[:])
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305: %w", err)
	}
	return aead.Seal(nil, nonce[:], plaintext, associatedData), nil
}

func (c DefaultCrypto) Decrypt(mk Key, authCiphertext, associatedData []byte) ([]byte, error) {
	if len(authCiphertext) < TagSize {
		return nil, ErrAuthentication
	}

	encKey, nonce := c.deriveEncKeys(mk)
	defer encKey.Wipe()

	aead, err := chacha20poly1305.New(encKey[:])
	if err != nil {
		return nil, fmt.Errorf("chacha20poly1305: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce[:], authCiphertext, associatedData)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// deriveEncKeys derives the AEAD key and nonce for message encryption and decryption.
func (c DefaultCrypto) deriveEncKeys(mk Key) (encKey Key, nonce [chacha20poly1305.NonceSize]byte) {
	var (
		salt = make([]byte, 32)
		r    = hkdf.New(sha256.New, mk[:], salt, []byte(kdfEncInfo))
		buf  = make([]byte, 32+chacha20poly1305.NonceSize)
	)

	// The only error here is an entropy limit which won't be reached for such a short buffer.
	_, _ = io.ReadFull(r, buf)

	copy(encKey[:], buf[:32])
	copy(nonce[:], buf[32:])
	wipe(buf)
	return encKey, nonce
}

// clamp applies the RFC 7748 scalar clamping.
func clamp(k *Key) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
