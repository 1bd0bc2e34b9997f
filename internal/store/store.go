// Package store implements the global dictionary: the single process-wide
// hash map of Entry records plus the AVL ordered index that rides
// alongside it. It is the one piece of mutable state the event loop owns
// and the command dispatcher borrows per command; nothing here is safe for
// concurrent access — the store is touched by exactly one goroutine.
package store

import (
	"bytes"

	"github.com/mariamtelly/kvserver/internal/avltree"
	"github.com/mariamtelly/kvserver/internal/dict"
)

// Entry is the value unit held by the dictionary. It carries the
// precomputed hash used by the hash table and, once inserted, a pointer to
// its node in the AVL ordered index, so deletion can unlink both
// structures without a second lookup.
type Entry struct {
	Key   []byte
	Value []byte

	hash uint64
	avl  *avltree.Node[*Entry]
}

// HashKey computes the FNV-1a-style hash of a key. The exact algorithm is
// part of the protocol contract, so it stays hand-rolled here rather than
// delegated to a general-purpose hash library.
func HashKey(key []byte) uint64 {
	h := uint32(0x811C9DC5)
	for _, b := range key {
		h = (h + uint32(b)) * 0x01000193
	}
	return uint64(h)
}

// Store is the dictionary: an HMap keyed by HashKey, plus an ascending-key
// AVL index over the same entries.
type Store struct {
	entries *dict.Map[*Entry]
	index   *avltree.Tree[*Entry]
}

// New returns an empty store.
func New() *Store {
	return &Store{
		entries: dict.NewMap[*Entry](),
		index:   avltree.New(lessByKey),
	}
}

func lessByKey(a, b *Entry) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

func eqByKey(key []byte) func(*Entry) bool {
	return func(e *Entry) bool { return bytes.Equal(e.Key, key) }
}

// Get returns the value stored under key, if present.
func (s *Store) Get(key []byte) ([]byte, bool) {
	e, ok := s.entries.Lookup(HashKey(key), eqByKey(key))
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Set overwrites key's value if present, or inserts a new Entry. New
// entries are linked into both the hash table and the ordered index.
func (s *Store) Set(key, value []byte) {
	h := HashKey(key)
	if e, ok := s.entries.Lookup(h, eqByKey(key)); ok {
		e.Value = value
		return
	}
	e := &Entry{Key: key, Value: value, hash: h}
	s.entries.Insert(h, e)
	e.avl = s.index.Insert(e)
}

// Delete removes key's Entry from both the hash table and the ordered
// index, releasing it. It reports whether key was present.
func (s *Store) Delete(key []byte) bool {
	e, ok := s.entries.Delete(HashKey(key), eqByKey(key))
	if !ok {
		return false
	}
	if e.avl != nil {
		s.index.Delete(e.avl)
	}
	return true
}

// Len is the number of live entries.
func (s *Store) Len() int {
	return s.entries.Len()
}

// IndexLen is the number of entries tracked by the ordered index; equal to
// Len() in steady state since every Set links both structures.
func (s *Store) IndexLen() int {
	return s.index.Len()
}

// OnMigrate installs a callback invoked whenever the underlying hash table
// moves entries from its secondary table into primary during a progressive
// rehash (internal/metrics wires this to a counter).
func (s *Store) OnMigrate(fn func(moved int)) {
	s.entries.OnMigrate = fn
}

// Keys returns every key in hash-bucket order (no ordering guarantee).
func (s *Store) Keys() [][]byte {
	keys := make([][]byte, 0, s.Len())
	s.entries.ForEach(func(e *Entry) { keys = append(keys, e.Key) })
	return keys
}

// Members returns every key in ascending lexicographic order, via an
// in-order walk of the AVL index.
func (s *Store) Members() [][]byte {
	keys := make([][]byte, 0, s.index.Len())
	s.index.InOrder(func(e *Entry) { keys = append(keys, e.Key) })
	return keys
}

// Rank returns key's zero-based position in ascending key order.
func (s *Store) Rank(key []byte) (int, bool) {
	e, ok := s.entries.Lookup(HashKey(key), eqByKey(key))
	if !ok || e.avl == nil {
		return 0, false
	}
	return s.index.Rank(e.avl), true
}

// Range returns up to count keys starting at zero-based ascending rank
// start, clamped to the number of entries actually available.
func (s *Store) Range(start, count int) [][]byte {
	n := s.index.Len()
	if start < 0 || start >= n || count <= 0 {
		return nil
	}
	if start+count > n {
		count = n - start
	}
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		node := s.index.Select(start + i)
		if node == nil {
			break
		}
		out = append(out, node.Val.Key)
	}
	return out
}
