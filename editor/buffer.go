package editor

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfRange is returned for offsets outside the buffer
var ErrOutOfRange = errors.New("editor: offset out of range")

// ErrReleased is returned when a released range is used
var ErrReleased = errors.New("editor: range released")

// Buffer is editable document text with live range handles. Offsets count
// runes. Every insert and delete shifts the tracked ranges so each keeps
// denoting the same logical span of text.
type Buffer struct {
	mu      sync.Mutex
	text    []rune
	ranges  map[*Range]struct{}
	version int
}

// Range is a live [from, to) span of a Buffer
type Range struct {
	buf      *Buffer
	from, to int
	released bool
}

func NewBuffer(text string) *Buffer {
	return &Buffer{text: []rune(text), ranges: make(map[*Range]struct{})}
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.text)
}

// Len returns the length in runes
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.text)
}

// Version increases on every edit
func (b *Buffer) Version() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

func (b *Buffer) check(from, to int) error {
	if from < 0 || to < from || to > len(b.text) {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, from, to, len(b.text))
	}
	return nil
}

// Track registers a live range over [from, to)
func (b *Buffer) Track(from, to int) (*Range, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(from, to); err != nil {
		return nil, err
	}
	r := &Range{buf: b, from: from, to: to}
	b.ranges[r] = struct{}{}
	return r, nil
}

// Slice returns the text of [from, to)
func (b *Buffer) Slice(from, to int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(from, to); err != nil {
		return "", err
	}
	return string(b.text[from:to]), nil
}

// Insert adds s at pos. A range starting at pos moves right; a range ending
// at pos does not grow.
func (b *Buffer) Insert(pos int, s string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(pos, pos); err != nil {
		return err
	}
	b.insertLocked(pos, []rune(s))
	return nil
}

// Delete removes [from, to). Ranges inside the deleted span collapse to from.
func (b *Buffer) Delete(from, to int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(from, to); err != nil {
		return err
	}
	b.deleteLocked(from, to)
	return nil
}

// Replace swaps the current text of r for s. Afterwards r spans exactly s.
func (b *Buffer) Replace(r *Range, s string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r == nil || r.buf != b || r.released {
		return ErrReleased
	}
	from, to := r.from, r.to
	repl := []rune(s)
	b.deleteLocked(from, to)
	b.insertLocked(from, repl)
	r.from, r.to = from, from+len(repl)
	return nil
}

func (b *Buffer) insertLocked(pos int, s []rune) {
	if len(s) == 0 {
		return
	}
	n := len(s)
	out := make([]rune, 0, len(b.text)+n)
	out = append(out, b.text[:pos]...)
	out = append(out, s...)
	out = append(out, b.text[pos:]...)
	b.text = out
	b.version++

	for r := range b.ranges {
		if pos <= r.from {
			r.from += n
		}
		if pos < r.to {
			r.to += n
		}
		if r.to < r.from {
			r.to = r.from
		}
	}
}

func (b *Buffer) deleteLocked(from, to int) {
	n := to - from
	if n == 0 {
		return
	}
	b.text = append(b.text[:from], b.text[to:]...)
	b.version++

	shift := func(p int) int {
		switch {
		case p <= from:
			return p
		case p < to:
			return from
		default:
			return p - n
		}
	}
	for r := range b.ranges {
		r.from, r.to = shift(r.from), shift(r.to)
	}
}

// Span returns the current offsets of the range
func (r *Range) Span() (from, to int) {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	return r.from, r.to
}

// Text returns the text currently covered by the range
func (r *Range) Text() string {
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	return string(r.buf.text[r.from:r.to])
}

// Release stops tracking the range. Releasing twice is a no-op.
func (r *Range) Release() {
	if r == nil {
		return
	}
	r.buf.mu.Lock()
	defer r.buf.mu.Unlock()
	r.released = true
	delete(r.buf.ranges, r)
}
