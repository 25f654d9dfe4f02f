package doubleratchet

import (
	"fmt"
	"log/slog"
)

// DefaultMaxSkip is the default maximum number of skipped message keys a session caches.
const DefaultMaxSkip = 1000

// Option is a constructor option.
type Option func(*Session) error

// WithMaxSkip specifies the maximum number of skipped message keys the session holds,
// which is also the largest counter gap a single message may open.
func WithMaxSkip(n int) Option {
	return func(s *Session) error {
		if n < 0 {
			return fmt.Errorf("n must be non-negative")
		}
		s.maxSkip = uint(n)
		return nil
	}
}

// WithMaxKeep specifies the number of DH ratchet steps after which skipped message keys
// of a retired chain are deleted. Zero keeps them until consumed.
func WithMaxKeep(n int) Option {
	return func(s *Session) error {
		if n < 0 {
			return fmt.Errorf("n must be non-negative")
		}
		s.maxKeep = uint(n)
		return nil
	}
}

// WithCrypto replaces DefaultCrypto.
func WithCrypto(c Crypto) Option {
	return func(s *Session) error {
		if c == nil {
			return fmt.Errorf("crypto must not be nil")
		}
		s.crypto = c
		return nil
	}
}

// WithKeysStorage replaces the in-memory skipped keys storage.
func WithKeysStorage(ks KeysStorage) Option {
	return func(s *Session) error {
		if ks == nil {
			return fmt.Errorf("keys storage must not be nil")
		}
		s.mkSkipped = ks
		return nil
	}
}

// WithLogger sets the logger for rejected messages. Key material is never logged.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = l
		return nil
	}
}

// WithAuditHook registers fn to be called for every rejected message.
// fn runs with the session locked and must not call back into it.
func WithAuditHook(fn func(AuditEvent)) Option {
	return func(s *Session) error {
		s.audit = fn
		return nil
	}
}
