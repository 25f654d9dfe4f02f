package doubleratchet

import "math"

type rootChain struct {
	// 32-byte root key.
	CK Key
}

// step rotates the root key with a Diffie-Hellman output and returns the freshly
// derived chain. The replaced root key is wiped.
func (c *rootChain) step(cr Crypto, dhOut Key) chain {
	rk, ck := cr.KdfRK(c.CK, dhOut)
	c.CK.Wipe()
	c.CK = rk
	return chain{CK: ck, Active: true}
}

type chain struct {
	// 32-byte chain key.
	CK Key

	// Messages count in the chain.
	N uint32

	// Active is false until the chain key was installed by a ratchet step.
	Active bool
}

// step performs a symmetric-key ratchet step and returns the message key for
// position N. The previous chain key is wiped.
func (c *chain) step(cr Crypto) (Key, error) {
	if !c.Active {
		return Key{}, ErrUninitializedSession
	}
	if c.N == math.MaxUint32 {
		return Key{}, ErrChainExhausted
	}
	ck, mk := cr.KdfCK(c.CK)
	c.CK.Wipe()
	c.CK = ck
	c.N++
	return mk, nil
}

func (c *chain) wipe() {
	c.CK.Wipe()
	c.N = 0
	c.Active = false
}
