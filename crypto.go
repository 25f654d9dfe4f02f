package doubleratchet

import "encoding/hex"

// Crypto is a cryptography supplement for the library.
//
// Implementations must be deterministic for DH, KdfRK and KdfCK and must not
// retain any of the keys passed to them.
type Crypto interface {
	// GenerateDH returns a new Diffie-Hellman key pair.
	GenerateDH() (DHPair, error)

	// DH returns the output from the Diffie-Hellman calculation between
	// the private key from the DH key pair dhPair and the DH public key dhPub.
	DH(dhPair DHPair, dhPub Key) (Key, error)

	// KdfRK returns a pair (32-byte root key, 32-byte chain key) as the output of applying
	// a KDF keyed by a 32-byte root key rk to a Diffie-Hellman output dhOut.
	KdfRK(rk, dhOut Key) (rootKey, chainKey Key)

	// KdfCK returns a pair (32-byte chain key, 32-byte message key) as the output of applying
	// a KDF keyed by a 32-byte chain key ck to some constant.
	KdfCK(ck Key) (chainKey, msgKey Key)

	// Encrypt returns an AEAD encryption of plaintext with message key mk. The associatedData
	// is authenticated but is not included in the ciphertext. The result ends with a TagSize tag.
	Encrypt(mk Key, plaintext, associatedData []byte) (authCiphertext []byte, err error)

	// Decrypt returns the AEAD decryption of ciphertext with message key mk.
	Decrypt(mk Key, authCiphertext, associatedData []byte) (plaintext []byte, err error)
}

// Key is any 32-byte key. It's created for the possibility of pretty hex output.
type Key [32]byte

// String implements fmt.Stringer.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether every byte of k is zero.
func (k Key) IsZero() bool {
	var v byte
	for _, b := range k {
		v |= b
	}
	return v == 0
}

// Wipe overwrites the key with zeros.
func (k *Key) Wipe() {
	wipe(k[:])
}

// DHPair is a ratchet key pair owned by the local party.
type DHPair struct {
	PrivateKey Key
	PublicKey  Key
}

// Wipe overwrites both halves of the pair.
func (p *DHPair) Wipe() {
	p.PrivateKey.Wipe()
	p.PublicKey.Wipe()
}

func (p DHPair) String() string {
	return "{privateKey: <redacted> publicKey: " + p.PublicKey.String() + "}"
}
