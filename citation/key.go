// Package citation defines citation keys, the rendered citation map shared
// across a batch, and the line patterns that recognise inline citation
// markers and doc-comment footnotes.
package citation

import (
	"slices"

	"golang.org/x/text/unicode/norm"
)

// Key identifies a bibliography entry. It is the NFC-normalised text found
// between "[^@" and "]" in an inline marker. Keys compare and order byte-wise.
type Key string

// NewKey normalises s into a Key.
func NewKey(s string) Key {
	return Key(norm.NFC.String(s))
}

// String returns the key text.
func (k Key) String() string {
	return string(k)
}

// KeySet is a set of keys. The zero value is not usable; use NewKeySet.
type KeySet map[Key]struct{}

// NewKeySet creates a set holding keys.
func NewKeySet(keys ...Key) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts k.
func (s KeySet) Add(k Key) {
	s[k] = struct{}{}
}

// Has reports whether k is in the set.
func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of keys.
func (s KeySet) Len() int {
	return len(s)
}

// Union adds every key of other to s.
func (s KeySet) Union(other KeySet) {
	for k := range other {
		s[k] = struct{}{}
	}
}

// Sorted returns the keys in ascending byte order.
func (s KeySet) Sorted() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Map holds rendered citation text by key. A Map is built once per batch
// and only read afterwards, so it is safe to share between goroutines.
type Map map[Key]string

// Get returns the rendered text for k.
func (m Map) Get(k Key) (string, bool) {
	text, ok := m[k]
	return text, ok
}
