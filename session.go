package doubleratchet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// retiredHistory is the number of DH ratchet steps for which a retired remote key
// is remembered after its last skipped message key is gone, so that late copies of
// its messages are reported as stale rather than failing authentication.
const retiredHistory = 32

// Role of the party in the session.
type Role uint8

const (
	// Initiator knows the responder's ratchet public key and sends first.
	Initiator Role = iota + 1

	// Responder owns the ratchet key pair the initiator was given.
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// InitialKeys are supplied by the handshake together with the shared root key.
type InitialKeys struct {
	// LocalPair is the local ratchet key pair. Required for the responder;
	// generated for the initiator when nil.
	LocalPair *DHPair

	// RemotePublic is the remote ratchet public key. Required for the initiator.
	RemotePublic Key
}

// AuditEvent describes a message the session refused.
type AuditEvent struct {
	SessionID uuid.UUID
	Header    MessageHeader
	Err       error
}

// Session is one party of a Double Ratchet session.
//
// Every method holds the session lock for its whole duration, so a Session may be
// shared between goroutines, but operations on it never overlap.
type Session struct {
	mu     sync.Mutex
	st     state
	closed bool

	id     uuid.UUID
	role   Role
	crypto Crypto

	// Dictionary of skipped-over message keys, indexed by ratchet public key and message number.
	mkSkipped KeysStorage

	// The maximum number of message keys that can be skipped.
	// It should be set high enough to tolerate routine lost or delayed messages,
	// but low enough that a malicious sender can't trigger excessive recipient computation.
	maxSkip uint

	// Number of ratchet steps after which all skipped message keys for a retired key will be deleted.
	maxKeep uint

	// Remote keys of the previous receiving chains with the step they were retired at.
	retired map[Key]uint

	logger *slog.Logger
	audit  func(AuditEvent)
}

// New creates a session from the handshake output.
func New(role Role, rootKey Key, keys InitialKeys, opts ...Option) (*Session, error) {
	if rootKey.IsZero() {
		return nil, fmt.Errorf("rootKey must be non-zero")
	}
	s, err := newSession(role, opts)
	if err != nil {
		return nil, err
	}
	s.st.RootCh.CK = rootKey

	switch role {
	case Initiator:
		if keys.RemotePublic.IsZero() {
			return nil, fmt.Errorf("initiator requires the remote ratchet public key")
		}
		if keys.LocalPair != nil {
			s.st.DHs = *keys.LocalPair
		} else if s.st.DHs, err = s.crypto.GenerateDH(); err != nil {
			return nil, fmt.Errorf("failed to generate dh pair: %w", err)
		}
		dhOut, err := s.crypto.DH(s.st.DHs, keys.RemotePublic)
		if err != nil {
			s.st.wipe()
			return nil, fmt.Errorf("invalid remote ratchet public key: %w", err)
		}
		s.st.DHr = keys.RemotePublic
		s.st.SendCh = s.st.RootCh.step(s.crypto, dhOut)
		dhOut.Wipe()
	case Responder:
		if keys.LocalPair == nil || keys.LocalPair.PrivateKey.IsZero() {
			return nil, fmt.Errorf("responder requires the local ratchet key pair")
		}
		s.st.DHs = *keys.LocalPair
	default:
		return nil, fmt.Errorf("unknown role %s", role)
	}

	s.logger.Debug("session created", "role", role)
	return s, nil
}

func newSession(role Role, opts []Option) (*Session, error) {
	s := &Session{
		id:      uuid.New(),
		role:    role,
		crypto:  DefaultCrypto{},
		maxSkip: DefaultMaxSkip,
		retired: make(map[Key]uint),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for i := range opts {
		if err := opts[i](s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if s.mkSkipped == nil {
		s.mkSkipped = NewKeysStorageInMemory(s.maxSkip)
	}
	s.logger = s.logger.With("session", s.id)
	return s, nil
}

// ID returns the random session identifier used in logs and audit events.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Role returns the role the session was created with.
func (s *Session) Role() Role {
	return s.role
}

// PublicKey returns the session's current ratchet public key.
func (s *Session) PublicKey() Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DHs.PublicKey
}

// SkippedCount returns the number of cached skipped message keys.
func (s *Session) SkippedCount() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.mkSkipped.Len()
}

// Encrypt performs a symmetric-key ratchet step, then encrypts the message with
// the resulting message key.
func (s *Session) Encrypt(plaintext []byte, ad AssociatedData) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, ErrSessionClosed
	}

	var (
		sendCh = s.st.SendCh
		h      = MessageHeader{
			DH: s.st.DHs.PublicKey,
			N:  sendCh.N,
			PN: s.st.PN,
		}
	)
	mk, err := sendCh.step(s.crypto)
	if err != nil {
		return Message{}, fmt.Errorf("can't step sending chain: %w", err)
	}
	ciphertext, err := s.crypto.Encrypt(mk, plaintext, h.EncodeWithAD(ad))
	mk.Wipe()
	if err != nil {
		sendCh.wipe()
		return Message{}, fmt.Errorf("can't encrypt: %w", err)
	}

	s.st.SendCh.wipe()
	s.st.SendCh = sendCh
	sendCh.wipe()
	return Message{Header: h, Ciphertext: ciphertext}, nil
}

// Decrypt authenticates and decrypts m. On any error the session is left exactly
// as it was before the call.
func (s *Session) Decrypt(m Message, ad AssociatedData) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	plaintext, err := s.decrypt(m, ad)
	if err != nil && isProtocolError(err) {
		s.reject(m.Header, err)
	}
	return plaintext, err
}

func (s *Session) decrypt(m Message, ad AssociatedData) ([]byte, error) {
	h := m.Header
	adh := h.EncodeWithAD(ad)

	// Is the message one of the skipped?
	if mk, ok := s.mkSkipped.Get(h.DH, h.N); ok {
		plaintext, err := s.open(mk, m.Ciphertext, adh)
		if err != nil {
			return nil, fmt.Errorf("can't decrypt skipped message: %w", err)
		}
		s.mkSkipped.DeleteMk(h.DH, h.N)
		return plaintext, nil
	}

	newKey := h.DH != s.st.DHr
	if err := s.checkReceivable(h, newKey); err != nil {
		return nil, err
	}

	var (
		// All changes are applied to a copy, so that the session won't be modified
		// nor left in a dirty state.
		sc      = s.st
		skipped []skippedKey
		err     error
	)
	discard := func() {
		sc.wipe()
		wipeSkipped(skipped)
	}

	if newKey {
		if sc.RecvCh.Active {
			if skipped, err = sc.skipMessageKeys(s.crypto, h.PN, skipped); err != nil {
				discard()
				return nil, fmt.Errorf("can't skip previous chain message keys: %w", err)
			}
		}
		if err = sc.dhRatchet(s.crypto, h.DH); err != nil {
			discard()
			return nil, fmt.Errorf("can't perform ratchet step: %w", err)
		}
	}

	// After all, update the current chain.
	if skipped, err = sc.skipMessageKeys(s.crypto, h.N, skipped); err != nil {
		discard()
		return nil, fmt.Errorf("can't skip current chain message keys: %w", err)
	}

	mk, err := sc.RecvCh.step(s.crypto)
	if err != nil {
		discard()
		return nil, fmt.Errorf("can't step receiving chain: %w", err)
	}
	plaintext, err := s.open(mk, m.Ciphertext, adh)
	if err != nil {
		discard()
		return nil, fmt.Errorf("can't decrypt: %w", err)
	}

	if err := s.commit(&sc, skipped, newKey); err != nil {
		wipe(plaintext)
		discard()
		return nil, err
	}
	return plaintext, nil
}

// open decrypts with the single-use key mk and wipes it. Any failure of the
// primitive is reported as ErrAuthentication.
func (s *Session) open(mk Key, ciphertext, ad []byte) ([]byte, error) {
	defer mk.Wipe()
	plaintext, err := s.crypto.Decrypt(mk, ciphertext, ad)
	if err != nil && !errors.Is(err, ErrAuthentication) {
		err = fmt.Errorf("%w: %s", ErrAuthentication, err)
	}
	return plaintext, err
}

// checkReceivable rejects a message before any key is derived for it.
func (s *Session) checkReceivable(h MessageHeader, newKey bool) error {
	if _, ok := s.retired[h.DH]; ok {
		return fmt.Errorf("%w: chain of message %d was retired", ErrReplayOrStale, h.N)
	}
	if h.DH.IsZero() {
		return fmt.Errorf("%w: empty ratchet public key", ErrAuthentication)
	}

	var prev, cur uint32
	if newKey {
		if s.st.RecvCh.Active && h.PN > s.st.RecvCh.N {
			prev = h.PN - s.st.RecvCh.N
		}
		cur = h.N
	} else {
		if !s.st.RecvCh.Active {
			return fmt.Errorf("%w: no receiving chain for the ratchet key", ErrAuthentication)
		}
		if h.N < s.st.RecvCh.N {
			return fmt.Errorf("%w: message %d is behind the receiving chain at %d", ErrReplayOrStale, h.N, s.st.RecvCh.N)
		}
		cur = h.N - s.st.RecvCh.N
	}

	if uint(prev) > s.maxSkip || uint(cur) > s.maxSkip {
		return fmt.Errorf("%w: gap of %d messages", ErrSkipLimitExceeded, max(prev, cur))
	}
	if total := s.mkSkipped.Len() + uint(prev) + uint(cur); total > s.maxSkip {
		return fmt.Errorf("%w: %d keys would be cached", ErrSkipLimitExceeded, total)
	}
	return nil
}

// commit stores the skipped keys, then installs the staged state sc and wipes it.
// If the storage refuses a key, the keys stored so far are removed and the session
// is left untouched.
func (s *Session) commit(sc *state, skipped []skippedKey, stepped bool) error {
	defer wipeSkipped(skipped)

	for i := range skipped {
		if err := s.mkSkipped.Put(skipped[i].dhr, skipped[i].nr, skipped[i].mk); err != nil {
			for j := range skipped[:i] {
				s.mkSkipped.DeleteMk(skipped[j].dhr, skipped[j].nr)
			}
			if !errors.Is(err, ErrSkipLimitExceeded) {
				err = fmt.Errorf("%w: %s", ErrSkipLimitExceeded, err)
			}
			return fmt.Errorf("can't store skipped message key %d: %w", skipped[i].nr, err)
		}
	}

	old := s.st
	s.st = *sc
	sc.wipe()
	defer old.wipe()

	if stepped {
		if !old.DHr.IsZero() {
			s.retired[old.DHr] = s.st.Step
		}
		s.expireRetired()
	}
	return nil
}

func (s *Session) expireRetired() {
	for pk, at := range s.retired {
		age := s.st.Step - at
		if s.maxKeep > 0 && age >= s.maxKeep {
			s.mkSkipped.DeletePk(pk)
		}
		if age >= retiredHistory && s.mkSkipped.Count(pk) == 0 {
			delete(s.retired, pk)
		}
	}
}

func (s *Session) reject(h MessageHeader, err error) {
	level := slog.LevelDebug
	if errors.Is(err, ErrSkipLimitExceeded) {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "message rejected", "n", h.N, "pn", h.PN, "err", err)
	if s.audit != nil {
		s.audit(AuditEvent{SessionID: s.id, Header: h, Err: err})
	}
}

// Close zeroizes all retained secrets. Every later operation fails with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.st.wipe()
	s.mkSkipped.Wipe()
	s.retired = nil
	s.closed = true
	s.logger.Debug("session closed")
	return nil
}
