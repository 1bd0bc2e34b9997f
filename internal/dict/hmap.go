package dict

// Rehash tunables. Exposed as package vars so tests and internal/config
// can adjust them; everything else should leave them at the defaults.
var (
	// RehashLoadFactor is the average chain length at which the primary
	// table is promoted to secondary and a larger primary is allocated.
	RehashLoadFactor = 8.0
	// MigrateQuantum bounds how many entries move from secondary to
	// primary per operation, so no single call pays for the whole resize.
	MigrateQuantum = 128
)

// Map is the dictionary: a pair of hash tables, the newer (primary) and,
// during a resize, the older (secondary) being progressively drained into
// it. It is not safe for concurrent use — this server runs every command
// on a single goroutine and never calls into Map from more than one.
type Map[T any] struct {
	primary, secondary *table[T]
	migrateCursor      int

	// OnMigrate, if set, is called after migrateStep moves a nonzero number
	// of entries from secondary into primary. Callers use it to drive an
	// external counter (internal/metrics) without this package importing
	// anything beyond the standard library.
	OnMigrate func(moved int)
}

// NewMap returns an empty dictionary.
func NewMap[T any]() *Map[T] {
	return &Map[T]{primary: newTable[T](initialBuckets)}
}

// Len is the number of live entries across both tables.
func (m *Map[T]) Len() int {
	n := m.primary.size
	if m.secondary != nil {
		n += m.secondary.size
	}
	return n
}

// Lookup finds the entry with hash h for which eq returns true. During a
// migration this queries primary first, then secondary, satisfying the
// "at most two bucket walks" invariant.
func (m *Map[T]) Lookup(h uint64, eq func(T) bool) (T, bool) {
	m.migrateStep()
	if v, ok := m.primary.lookup(h, eq); ok {
		return v, ok
	}
	if m.secondary != nil {
		return m.secondary.lookup(h, eq)
	}
	var zero T
	return zero, false
}

// Insert adds val under hash h. Inserts always land in primary; an entry
// already draining out of secondary is not touched by this call (a
// subsequent migrateStep will simply find it gone if it was deleted, or
// move the stale copy — callers are expected not to Insert a key that is
// already present; Set in internal/store checks with Lookup first and
// updates an existing entry in place).
func (m *Map[T]) Insert(h uint64, val T) {
	m.migrateStep()
	m.primary.insert(h, val)
	m.maybeStartRehash()
}

// Delete removes the entry with hash h for which eq returns true, checking
// primary then secondary.
func (m *Map[T]) Delete(h uint64, eq func(T) bool) (T, bool) {
	m.migrateStep()
	if v, ok := m.primary.detach(h, eq); ok {
		return v, true
	}
	if m.secondary != nil {
		return m.secondary.detach(h, eq)
	}
	var zero T
	return zero, false
}

// ForEach visits every live entry in both tables. fn must not mutate the
// map.
func (m *Map[T]) ForEach(fn func(T)) {
	m.primary.forEach(fn)
	if m.secondary != nil {
		m.secondary.forEach(fn)
	}
}

func (m *Map[T]) maybeStartRehash() {
	if m.secondary != nil {
		return // a migration is already in progress
	}
	if m.primary.loadFactor() < RehashLoadFactor {
		return
	}
	m.secondary = m.primary
	m.primary = newTable[T](len(m.secondary.buckets) * 2)
	m.migrateCursor = 0
}

// migrateStep moves up to MigrateQuantum entries out of secondary into
// primary, advancing past fully-drained buckets. Called at the top of
// every operation so the amortized cost per op is O(1).
func (m *Map[T]) migrateStep() {
	if m.secondary == nil {
		return
	}
	moved := 0
	for moved < MigrateQuantum && m.migrateCursor < len(m.secondary.buckets) {
		head := m.secondary.buckets[m.migrateCursor]
		if head == nil {
			m.migrateCursor++
			continue
		}
		m.secondary.buckets[m.migrateCursor] = head.next
		m.secondary.size--
		head.next = nil
		m.primary.insert(head.hash, head.val)
		moved++
	}
	if m.migrateCursor >= len(m.secondary.buckets) {
		m.secondary = nil
		m.migrateCursor = 0
	}
	if moved > 0 && m.OnMigrate != nil {
		m.OnMigrate(moved)
	}
}
