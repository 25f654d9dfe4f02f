package doubleratchet

import "fmt"

// KeysStorage is an interface of an abstract in-memory or persistent keys storage
// for skipped message keys.
type KeysStorage interface {
	// Get returns a message key by the given public key and message number.
	Get(pubKey Key, msgNum uint32) (mk Key, ok bool)

	// Put saves the given mk under the specified pubKey and msgNum.
	// It fails with ErrSkipLimitExceeded instead of evicting anything.
	Put(pubKey Key, msgNum uint32, mk Key) error

	// DeleteMk ensures there's no message key under the specified pubKey and msgNum.
	DeleteMk(pubKey Key, msgNum uint32)

	// DeletePk ensures there's no message keys under the specified pubKey.
	DeletePk(pubKey Key)

	// Count returns number of message keys stored under pubKey.
	Count(pubKey Key) uint

	// Len returns the total number of stored message keys.
	Len() uint

	// All returns a copy of all stored keys, indexed by public key and message number.
	All() map[Key]map[uint32]Key

	// Wipe zeroes and removes every stored key.
	Wipe()
}

// KeysStorageInMemory is an in-memory message keys storage.
type KeysStorageInMemory struct {
	// Limit is the maximum number of keys stored at once. Zero means unbounded.
	Limit uint

	keys map[Key]map[uint32]Key
	n    uint
}

// NewKeysStorageInMemory returns an in-memory storage holding at most limit keys.
func NewKeysStorageInMemory(limit uint) *KeysStorageInMemory {
	return &KeysStorageInMemory{Limit: limit}
}

func (s *KeysStorageInMemory) Get(pubKey Key, msgNum uint32) (Key, bool) {
	msgs, ok := s.keys[pubKey]
	if !ok {
		return Key{}, false
	}
	mk, ok := msgs[msgNum]
	if !ok {
		return Key{}, false
	}
	return mk, true
}

func (s *KeysStorageInMemory) Put(pubKey Key, msgNum uint32, mk Key) error {
	if s.keys == nil {
		s.keys = make(map[Key]map[uint32]Key)
	}
	msgs, ok := s.keys[pubKey]
	if !ok {
		msgs = make(map[uint32]Key)
		s.keys[pubKey] = msgs
	}
	if _, ok := msgs[msgNum]; ok {
		msgs[msgNum] = mk
		return nil
	}
	if s.Limit > 0 && s.n >= s.Limit {
		if len(msgs) == 0 {
			delete(s.keys, pubKey)
		}
		return fmt.Errorf("%w: storage holds %d keys", ErrSkipLimitExceeded, s.n)
	}
	msgs[msgNum] = mk
	s.n++
	return nil
}

func (s *KeysStorageInMemory) DeleteMk(pubKey Key, msgNum uint32) {
	msgs, ok := s.keys[pubKey]
	if !ok {
		return
	}
	mk, ok := msgs[msgNum]
	if !ok {
		return
	}
	mk.Wipe()
	msgs[msgNum] = mk
	delete(msgs, msgNum)
	s.n--
	if len(msgs) == 0 {
		delete(s.keys, pubKey)
	}
}

func (s *KeysStorageInMemory) DeletePk(pubKey Key) {
	msgs, ok := s.keys[pubKey]
	if !ok {
		return
	}
	for n, mk := range msgs {
		mk.Wipe()
		msgs[n] = mk
	}
	s.n -= uint(len(msgs))
	delete(s.keys, pubKey)
}

func (s *KeysStorageInMemory) Count(pubKey Key) uint {
	return uint(len(s.keys[pubKey]))
}

func (s *KeysStorageInMemory) Len() uint {
	return s.n
}

func (s *KeysStorageInMemory) All() map[Key]map[uint32]Key {
	all := make(map[Key]map[uint32]Key, len(s.keys))
	for pk, msgs := range s.keys {
		cp := make(map[uint32]Key, len(msgs))
		for n, mk := range msgs {
			cp[n] = mk
		}
		all[pk] = cp
	}
	return all
}

func (s *KeysStorageInMemory) Wipe() {
	for pk := range s.keys {
		s.DeletePk(pk)
	}
	s.keys = nil
	s.n = 0
}
