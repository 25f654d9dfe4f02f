package doubleratchet

import (
	"errors"
	"fmt"
)

// state of the party involved in The Double Ratchet Algorithm.
//
// state holds no references: assigning it copies every key, which is what lets
// Session stage a decryption on a copy and commit it with a single assignment.
type state struct {
	// Root chain. Both parties MUST agree on its initial key before starting a ratchet session.
	RootCh rootChain

	// DH Ratchet public key (the remote key).
	DHr Key

	// DH Ratchet key pair (the self ratchet key).
	DHs DHPair

	// Sending and receiving chains. Their N fields are Ns and Nr.
	SendCh, RecvCh chain

	// Number of messages in previous sending chain.
	PN uint32

	// The number of DH ratchet steps performed.
	Step uint
}

type skippedKey struct {
	dhr Key
	nr  uint32
	mk  Key
}

// skipMessageKeys appends to batch the message keys of the receiving chain up to,
// but not including, until. On error the whole batch is wiped.
// The caller checks the skip limits beforehand.
func (s *state) skipMessageKeys(cr Crypto, until uint32, batch []skippedKey) ([]skippedKey, error) {
	if s.RecvCh.N < until {
		// Grow once so append never leaves a stale copy of the keys behind.
		if need := len(batch) + int(until-s.RecvCh.N); need > cap(batch) {
			grown := make([]skippedKey, len(batch), need)
			copy(grown, batch)
			wipeSkipped(batch)
			batch = grown
		}
	}
	for s.RecvCh.N < until {
		nr := s.RecvCh.N
		mk, err := s.RecvCh.step(cr)
		if err != nil {
			wipeSkipped(batch)
			return batch, err
		}
		batch = append(batch, skippedKey{dhr: s.DHr, nr: nr, mk: mk})
		mk.Wipe()
	}
	return batch, nil
}

// dhRatchet performs a single ratchet step towards the remote key dhPub.
// The receiving chain is derived with the current key pair before a new pair exists;
// the sending chain is derived with the new pair.
func (s *state) dhRatchet(cr Crypto, dhPub Key) error {
	dhOut, err := cr.DH(s.DHs, dhPub)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAuthentication, err)
	}
	s.RecvCh.wipe()
	s.RecvCh = s.RootCh.step(cr, dhOut)
	dhOut.Wipe()

	pair, err := cr.GenerateDH()
	if err != nil {
		return fmt.Errorf("failed to generate dh pair: %w", err)
	}
	dhOut, err = cr.DH(pair, dhPub)
	if err != nil {
		pair.Wipe()
		return fmt.Errorf("%w: %s", ErrAuthentication, err)
	}

	s.PN = s.SendCh.N
	s.SendCh.wipe()
	s.SendCh = s.RootCh.step(cr, dhOut)
	dhOut.Wipe()

	s.DHs.Wipe()
	s.DHs = pair
	s.DHr = dhPub
	s.Step++
	return nil
}

func (s *state) wipe() {
	s.RootCh.CK.Wipe()
	s.DHr.Wipe()
	s.DHs.Wipe()
	s.SendCh.wipe()
	s.RecvCh.wipe()
	s.PN = 0
}

func wipeSkipped(keys []skippedKey) {
	for i := range keys {
		keys[i].mk.Wipe()
	}
}

// isProtocolError reports whether err is a recoverable per-message failure.
func isProtocolError(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrSkipLimitExceeded) ||
		errors.Is(err, ErrReplayOrStale)
}
