package doubleratchet

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/dh/x25519"
)

var errLowOrderPoint = errors.New("x25519: low order point")

// CirclCrypto performs the Diffie-Hellman half of Crypto with the circl X25519
// implementation. Key derivation and the AEAD are those of DefaultCrypto, so both
// implementations interoperate on the wire.
type CirclCrypto struct {
	DefaultCrypto
}

func (c CirclCrypto) GenerateDH() (DHPair, error) {
	var secret, public x25519.Key
	if _, err := io.ReadFull(rand.Reader, secret[:]); err != nil {
		return DHPair{}, fmt.Errorf("couldn't generate privKey: %w", err)
	}
	priv := Key(secret)
	clamp(&priv)
	secret = x25519.Key(priv)

	x25519.KeyGen(&public, &secret)
	wipe(secret[:])

	return DHPair{PrivateKey: priv, PublicKey: Key(public)}, nil
}

func (c CirclCrypto) DH(dhPair DHPair, dhPub Key) (Key, error) {
	var (
		shared x25519.Key
		secret = x25519.Key(dhPair.PrivateKey)
		public = x25519.Key(dhPub)
	)
	defer wipe(secret[:])

	if !x25519.Shared(&shared, &secret, &public) {
		return Key{}, errLowOrderPoint
	}
	out := Key(shared)
	wipe(shared[:])
	return out, nil
}
