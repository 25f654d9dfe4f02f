package doubleratchet

import "runtime"

// wipe zeroes b. This is best-effort: the Go runtime may have copied the
// bytes elsewhere before we got here.
//
//go:noinline
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
