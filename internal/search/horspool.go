// Package search provides fixed-pattern byte search over in-memory buffers.
package search

import "errors"

// ErrEmptyPattern is returned when a pattern has no bytes.
var ErrEmptyPattern = errors.New("搜索模式不能为空")

// Pattern is an immutable byte pattern with its Horspool skip table.
// A Pattern is safe for concurrent use by multiple goroutines.
type Pattern struct {
	needle []byte
	skip   [256]int
}

// New builds a Pattern from p. The bytes are copied, so later changes to p
// do not affect the Pattern.
func New(p []byte) (*Pattern, error) {
	if len(p) == 0 {
		return nil, ErrEmptyPattern
	}

	pat := &Pattern{needle: append([]byte(nil), p...)}
	n := len(pat.needle)
	for i := range pat.skip {
		pat.skip[i] = n
	}
	// Later occurrences override earlier ones.
	for i, b := range pat.needle {
		pat.skip[b] = n - i - 1
	}
	return pat, nil
}

// Bytes returns a copy of the pattern bytes.
func (p *Pattern) Bytes() []byte {
	return append([]byte(nil), p.needle...)
}

// FindAll returns the start offset of every occurrence of the pattern in
// haystack, in ascending order. Overlapping occurrences are all reported.
func (p *Pattern) FindAll(haystack []byte) []int {
	n := len(p.needle)
	if len(haystack) < n {
		return nil
	}

	var offsets []int
	last := p.needle[n-1]
	for cursor := n - 1; cursor < len(haystack); {
		b := haystack[cursor]
		if b != last {
			cursor += p.skip[b]
			continue
		}

		start := cursor - n + 1
		matched := true
		for j := n - 2; j >= 0; j-- {
			if haystack[start+j] != p.needle[j] {
				matched = false
				break
			}
		}
		if matched {
			offsets = append(offsets, start)
		}
		cursor++
	}
	return offsets
}

// FindAll is a convenience wrapper that builds a Pattern and searches
// haystack once. An empty pattern matches nothing.
func FindAll(pattern, haystack []byte) []int {
	p, err := New(pattern)
	if err != nil {
		return nil
	}
	return p.FindAll(haystack)
}
