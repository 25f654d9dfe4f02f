package doubleratchet

import (
	"errors"
	"fmt"
)

// Protocol errors returned by Session. None of them leave the session in a
// modified state; the caller decides whether to request retransmission.
var (
	// ErrAuthentication is returned when the AEAD tag doesn't verify, including
	// the case of a tampered header.
	ErrAuthentication = errors.New("doubleratchet: message authentication failed")

	// ErrSkipLimitExceeded is returned when reaching the message counter would require
	// caching more skipped message keys than the session allows.
	ErrSkipLimitExceeded = errors.New("doubleratchet: skip limit exceeded")

	// ErrReplayOrStale is returned for a message whose key was already consumed or expired.
	ErrReplayOrStale = errors.New("doubleratchet: message key already consumed")

	// ErrUninitializedSession is returned when an operation needs keys that were never installed.
	ErrUninitializedSession = errors.New("doubleratchet: session is not initialized")

	// ErrSessionClosed is returned by every operation after Close.
	ErrSessionClosed = fmt.Errorf("%w: session closed", ErrUninitializedSession)

	// ErrMalformedMessage is returned when a wire message can't be decoded.
	ErrMalformedMessage = errors.New("doubleratchet: malformed message")

	// ErrChainExhausted is returned when a message counter would overflow.
	ErrChainExhausted = errors.New("doubleratchet: chain exhausted")
)
