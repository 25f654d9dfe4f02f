package commands

import "math/rand"

// link is a one-way in-memory channel that drops and reorders datagrams.
type link struct {
	rnd    *rand.Rand
	drop   float64
	window int
	buf    [][]byte
}

func newLink(rnd *rand.Rand, drop float64, window int) *link {
	if window < 1 {
		window = 1
	}
	return &link{rnd: rnd, drop: drop, window: window}
}

// send queues data and reports whether the link lost it.
func (l *link) send(data []byte) bool {
	if l.rnd.Float64() < l.drop {
		return true
	}
	l.buf = append(l.buf, data)
	return false
}

// next returns a random queued datagram once the reorder window is full.
func (l *link) next() ([]byte, bool) {
	if len(l.buf) < l.window {
		return nil, false
	}
	return l.pop(), true
}

// flush returns everything still queued, in random order.
func (l *link) flush() [][]byte {
	out := make([][]byte, 0, len(l.buf))
	for len(l.buf) > 0 {
		out = append(out, l.pop())
	}
	return out
}

func (l *link) pop() []byte {
	i := l.rnd.Intn(len(l.buf))
	data := l.buf[i]
	l.buf[i] = l.buf[len(l.buf)-1]
	l.buf = l.buf[:len(l.buf)-1]
	return data
}
