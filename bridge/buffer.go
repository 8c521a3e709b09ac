package bridge

import "unicode/utf8"

// Buffer is a byte accumulator that never grows past its limit.
type Buffer struct {
	buf   []byte
	limit int
}

func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit}
}

// Append adds s and reports whether it did not fit. On overflow as much of
// s as fits is kept, cut back to the nearest UTF-8 code point boundary.
func (b *Buffer) Append(s string) (overflow bool) {
	room := b.limit - len(b.buf)
	if len(s) <= room {
		b.buf = append(b.buf, s...)
		return false
	}
	b.buf = append(b.buf, s[:cutPoint(s, room)]...)
	return true
}

// Take returns the contents and empties the buffer.
func (b *Buffer) Take() string {
	s := string(b.buf)
	b.buf = b.buf[:0]
	return s
}

func (b *Buffer) String() string { return string(b.buf) }
func (b *Buffer) Len() int       { return len(b.buf) }
func (b *Buffer) Limit() int     { return b.limit }

func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
}

// cutPoint returns the largest i <= n that does not split a code point.
// n must be less than len(s).
func cutPoint(s string, n int) int {
	if n <= 0 {
		return 0
	}
	i := n
	for i > 0 && !utf8.RuneStart(s[i]) && n-i < utf8.UTFMax {
		i--
	}
	if !utf8.RuneStart(s[i]) {
		// Not valid UTF-8 around the limit; fall back to a byte cut.
		return n
	}
	return i
}
