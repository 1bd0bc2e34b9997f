package dict

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kv struct {
	key string
	val int
}

func hashString(s string) uint64 {
	h := uint32(0x811C9DC5)
	for i := 0; i < len(s); i++ {
		h = (h + uint32(s[i])) * 0x01000193
	}
	return uint64(h)
}

func eqKey(key string) func(kv) bool {
	return func(e kv) bool { return e.key == key }
}

func TestInsertLookupDelete(t *testing.T) {
	m := NewMap[kv]()
	m.Insert(hashString("a"), kv{"a", 1})
	m.Insert(hashString("b"), kv{"b", 2})

	v, ok := m.Lookup(hashString("a"), eqKey("a"))
	require.True(t, ok)
	assert.Equal(t, 1, v.val)

	_, ok = m.Lookup(hashString("missing"), eqKey("missing"))
	assert.False(t, ok)

	v, ok = m.Delete(hashString("a"), eqKey("a"))
	require.True(t, ok)
	assert.Equal(t, 1, v.val)

	_, ok = m.Lookup(hashString("a"), eqKey("a"))
	assert.False(t, ok)

	_, ok = m.Delete(hashString("a"), eqKey("a"))
	assert.False(t, ok, "deleting a missing key is idempotent")
}

func TestForEachVisitsEveryLiveEntry(t *testing.T) {
	m := NewMap[kv]()
	want := map[string]bool{}
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("key-%d", i)
		m.Insert(hashString(k), kv{k, i})
		want[k] = true
	}

	got := map[string]bool{}
	m.ForEach(func(e kv) { got[e.key] = true })
	assert.Equal(t, want, got)
}

// TestProgressiveRehash drives enough inserts to force several resizes
// under a small migration quantum, and checks that every live key is still
// found by at most two bucket walks (i.e. Lookup against primary+secondary
// still returns it) throughout.
func TestProgressiveRehash(t *testing.T) {
	oldLoad, oldQuantum := RehashLoadFactor, MigrateQuantum
	RehashLoadFactor = 2.0
	MigrateQuantum = 4
	defer func() { RehashLoadFactor, MigrateQuantum = oldLoad, oldQuantum }()

	m := NewMap[kv]()
	const n = 2000
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%d", i)
		m.Insert(hashString(k), kv{k, i})

		// spot-check a handful of previously inserted keys on every 37th
		// iteration so a migration in progress never hides a live entry
		if i%37 == 0 {
			for j := 0; j <= i; j += (i/5 + 1) {
				kk := fmt.Sprintf("key-%d", j)
				_, ok := m.Lookup(hashString(kk), eqKey(kk))
				assert.Truef(t, ok, "key %s should still be found during migration", kk)
			}
		}
	}
	assert.Equal(t, n, m.Len())

	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%d", i)
		_, ok := m.Lookup(hashString(k), eqKey(k))
		assert.True(t, ok)
	}
}

func TestDeleteDuringMigration(t *testing.T) {
	oldLoad, oldQuantum := RehashLoadFactor, MigrateQuantum
	RehashLoadFactor = 2.0
	MigrateQuantum = 2
	defer func() { RehashLoadFactor, MigrateQuantum = oldLoad, oldQuantum }()

	m := NewMap[kv]()
	keys := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		k := fmt.Sprintf("key-%d", i)
		keys = append(keys, k)
		m.Insert(hashString(k), kv{k, i})
	}

	for i, k := range keys {
		if i%2 == 0 {
			_, ok := m.Delete(hashString(k), eqKey(k))
			require.True(t, ok)
		}
	}

	for i, k := range keys {
		_, ok := m.Lookup(hashString(k), eqKey(k))
		if i%2 == 0 {
			assert.False(t, ok)
		} else {
			assert.True(t, ok)
		}
	}
	assert.Equal(t, 100, m.Len())
}
