package doubleratchet

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

const snapshotVersion = 1

// snapshotKey is a Key that decodes only from a byte string of exactly 32 bytes.
type snapshotKey Key

func (k *snapshotKey) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	defer wipe(b)
	if len(b) != len(k) {
		return fmt.Errorf("key must be %d bytes, %d given", len(k), len(b))
	}
	copy(k[:], b)
	return nil
}

func (k *snapshotKey) wipe() {
	wipe(k[:])
}

// snapshot is the CBOR form of a session. It carries every secret of the session.
type snapshot struct {
	Version uint8  `cbor:"1,keyasint"`
	ID      []byte `cbor:"2,keyasint"`
	Role    Role   `cbor:"3,keyasint"`

	RootKey    snapshotKey `cbor:"4,keyasint"`
	DHr        snapshotKey `cbor:"5,keyasint"`
	DHsPriv    snapshotKey `cbor:"6,keyasint"`
	DHsPub     snapshotKey `cbor:"7,keyasint"`
	SendCK     snapshotKey `cbor:"8,keyasint"`
	SendN      uint32      `cbor:"9,keyasint"`
	SendActive bool        `cbor:"10,keyasint"`
	RecvCK     snapshotKey `cbor:"11,keyasint"`
	RecvN      uint32      `cbor:"12,keyasint"`
	RecvActive bool        `cbor:"13,keyasint"`
	PN         uint32      `cbor:"14,keyasint"`
	Step       uint        `cbor:"15,keyasint"`

	MaxSkip uint `cbor:"16,keyasint"`
	MaxKeep uint `cbor:"17,keyasint"`

	Skipped []snapshotSkipped `cbor:"18,keyasint"`
	Retired []snapshotRetired `cbor:"19,keyasint"`
}

type snapshotSkipped struct {
	DH snapshotKey `cbor:"1,keyasint"`
	N  uint32      `cbor:"2,keyasint"`
	MK snapshotKey `cbor:"3,keyasint"`
}

type snapshotRetired struct {
	DH   snapshotKey `cbor:"1,keyasint"`
	Step uint        `cbor:"2,keyasint"`
}

func (sn *snapshot) wipe() {
	sn.RootKey.wipe()
	sn.DHsPriv.wipe()
	sn.SendCK.wipe()
	sn.RecvCK.wipe()
	for i := range sn.Skipped {
		sn.Skipped[i].MK.wipe()
	}
}

// validate rejects snapshots that New could never have produced.
func (sn *snapshot) validate() error {
	switch {
	case Key(sn.RootKey).IsZero():
		return fmt.Errorf("empty root key")
	case Key(sn.DHsPriv).IsZero(), Key(sn.DHsPub).IsZero():
		return fmt.Errorf("empty ratchet key pair")
	case sn.SendActive && Key(sn.SendCK).IsZero():
		return fmt.Errorf("empty sending chain key")
	case sn.RecvActive && Key(sn.RecvCK).IsZero():
		return fmt.Errorf("empty receiving chain key")
	case sn.RecvActive && Key(sn.DHr).IsZero():
		return fmt.Errorf("receiving chain without remote ratchet key")
	case sn.Role == Initiator && Key(sn.DHr).IsZero():
		return fmt.Errorf("initiator without remote ratchet key")
	}
	for i := range sn.Skipped {
		if Key(sn.Skipped[i].DH).IsZero() || Key(sn.Skipped[i].MK).IsZero() {
			return fmt.Errorf("empty skipped message key %d", sn.Skipped[i].N)
		}
	}
	return nil
}

var snapshotEncMode cbor.EncMode

func init() {
	var err error
	if snapshotEncMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
}

// MarshalBinary exports the whole session, secrets included, for a persistence
// collaborator. The output must be protected like the keys themselves.
func (s *Session) MarshalBinary() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	sn := snapshot{
		Version:    snapshotVersion,
		ID:         s.id[:],
		Role:       s.role,
		RootKey:    snapshotKey(s.st.RootCh.CK),
		DHr:        snapshotKey(s.st.DHr),
		DHsPriv:    snapshotKey(s.st.DHs.PrivateKey),
		DHsPub:     snapshotKey(s.st.DHs.PublicKey),
		SendCK:     snapshotKey(s.st.SendCh.CK),
		SendN:      s.st.SendCh.N,
		SendActive: s.st.SendCh.Active,
		RecvCK:     snapshotKey(s.st.RecvCh.CK),
		RecvN:      s.st.RecvCh.N,
		RecvActive: s.st.RecvCh.Active,
		PN:         s.st.PN,
		Step:       s.st.Step,
		MaxSkip:    s.maxSkip,
		MaxKeep:    s.maxKeep,
	}
	defer sn.wipe()

	for pk, msgs := range s.mkSkipped.All() {
		for n, mk := range msgs {
			sn.Skipped = append(sn.Skipped, snapshotSkipped{DH: snapshotKey(pk), N: n, MK: snapshotKey(mk)})
			msgs[n] = Key{}
		}
	}
	for pk, at := range s.retired {
		sn.Retired = append(sn.Retired, snapshotRetired{DH: snapshotKey(pk), Step: at})
	}

	data, err := snapshotEncMode.Marshal(sn)
	if err != nil {
		return nil, fmt.Errorf("can't encode session: %w", err)
	}
	return data, nil
}

// Restore recreates a session exported with MarshalBinary. Options override the
// stored limits; the crypto implementation must match the one used before.
func Restore(data []byte, opts ...Option) (*Session, error) {
	var sn snapshot
	if err := cbor.Unmarshal(data, &sn); err != nil {
		return nil, fmt.Errorf("can't decode session: %w", err)
	}
	defer sn.wipe()

	if sn.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported session snapshot version %d", sn.Version)
	}
	id, err := uuid.FromBytes(sn.ID)
	if err != nil {
		return nil, fmt.Errorf("bad session id: %w", err)
	}
	if sn.Role != Initiator && sn.Role != Responder {
		return nil, fmt.Errorf("unknown role %s", sn.Role)
	}
	if err := sn.validate(); err != nil {
		return nil, fmt.Errorf("invalid session snapshot: %w", err)
	}

	opts = append([]Option{
		WithMaxSkip(int(sn.MaxSkip)),
		WithMaxKeep(int(sn.MaxKeep)),
		func(s *Session) error {
			s.id = id
			return nil
		},
	}, opts...)
	s, err := newSession(sn.Role, opts)
	if err != nil {
		return nil, err
	}

	s.st = state{
		RootCh: rootChain{CK: Key(sn.RootKey)},
		DHr:    Key(sn.DHr),
		DHs:    DHPair{PrivateKey: Key(sn.DHsPriv), PublicKey: Key(sn.DHsPub)},
		SendCh: chain{CK: Key(sn.SendCK), N: sn.SendN, Active: sn.SendActive},
		RecvCh: chain{CK: Key(sn.RecvCK), N: sn.RecvN, Active: sn.RecvActive},
		PN:     sn.PN,
		Step:   sn.Step,
	}
	for i := range sn.Skipped {
		sk := &sn.Skipped[i]
		if err := s.mkSkipped.Put(Key(sk.DH), sk.N, Key(sk.MK)); err != nil {
			s.st.wipe()
			s.mkSkipped.Wipe()
			return nil, fmt.Errorf("can't restore skipped keys: %w", err)
		}
	}
	for _, r := range sn.Retired {
		s.retired[Key(r.DH)] = r.Step
	}
	return s, nil
}
