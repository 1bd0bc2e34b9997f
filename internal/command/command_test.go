package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariamtelly/kvserver/internal/store"
	"github.com/mariamtelly/kvserver/internal/wire"
)

func args(strs ...string) [][]byte {
	out := make([][]byte, len(strs))
	for i, s := range strs {
		out[i] = []byte(s)
	}
	return out
}

func TestUnknownCommand(t *testing.T) {
	s := store.New()
	got := Dispatch(s, args("frobnicate"))
	require.Equal(t, wire.TagErr, got.Tag)
	assert.Equal(t, wire.ErrUnknownCommand, got.ErrCode)
	assert.Equal(t, "unknown command", got.ErrMsg)
}

func TestWrongArityIsUnknownCommand(t *testing.T) {
	s := store.New()
	got := Dispatch(s, args("get"))
	assert.Equal(t, wire.TagErr, got.Tag)

	got = Dispatch(s, args("set", "k"))
	assert.Equal(t, wire.TagErr, got.Tag)
}

func TestSetGetDelLaws(t *testing.T) {
	s := store.New()

	assert.Equal(t, wire.Nil(), Dispatch(s, args("set", "k", "v")))
	assert.Equal(t, wire.Str([]byte("v")), Dispatch(s, args("get", "k")))

	assert.Equal(t, wire.Nil(), Dispatch(s, args("set", "k", "v2")))
	assert.Equal(t, wire.Str([]byte("v2")), Dispatch(s, args("get", "k")))

	assert.Equal(t, wire.Int(1), Dispatch(s, args("del", "k")))
	assert.Equal(t, wire.Nil(), Dispatch(s, args("get", "k")))
	assert.Equal(t, wire.Int(0), Dispatch(s, args("del", "k")), "deleting a missing key is idempotent")
}

func TestGetMissingIsNilNotError(t *testing.T) {
	s := store.New()
	assert.Equal(t, wire.Nil(), Dispatch(s, args("get", "missing")))
}

func TestKeysContainsEachSetKeyExactlyOnce(t *testing.T) {
	s := store.New()
	Dispatch(s, args("set", "a", "1"))
	Dispatch(s, args("set", "b", "2"))

	resp := Dispatch(s, args("keys"))
	require.Equal(t, wire.TagArr, resp.Tag)
	require.Len(t, resp.Arr, 2)

	seen := map[string]bool{}
	for _, v := range resp.Arr {
		require.Equal(t, wire.TagStr, v.Tag)
		seen[string(v.Str)] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

func TestPing(t *testing.T) {
	s := store.New()
	assert.Equal(t, wire.Str([]byte("PONG")), Dispatch(s, args("ping")))
}

func TestDBSize(t *testing.T) {
	s := store.New()
	assert.Equal(t, wire.Int(0), Dispatch(s, args("dbsize")))
	Dispatch(s, args("set", "a", "1"))
	Dispatch(s, args("set", "b", "2"))
	assert.Equal(t, wire.Int(2), Dispatch(s, args("dbsize")))
}

func TestMembersAreOrderedAscending(t *testing.T) {
	s := store.New()
	Dispatch(s, args("set", "banana", "1"))
	Dispatch(s, args("set", "apple", "2"))
	Dispatch(s, args("set", "cherry", "3"))

	resp := Dispatch(s, args("members"))
	require.Equal(t, wire.TagArr, resp.Tag)
	require.Len(t, resp.Arr, 3)
	assert.Equal(t, "apple", string(resp.Arr[0].Str))
	assert.Equal(t, "banana", string(resp.Arr[1].Str))
	assert.Equal(t, "cherry", string(resp.Arr[2].Str))
}

func TestRank(t *testing.T) {
	s := store.New()
	Dispatch(s, args("set", "b", "1"))
	Dispatch(s, args("set", "a", "1"))
	Dispatch(s, args("set", "c", "1"))

	assert.Equal(t, wire.Int(0), Dispatch(s, args("rank", "a")))
	assert.Equal(t, wire.Int(1), Dispatch(s, args("rank", "b")))
	assert.Equal(t, wire.Int(2), Dispatch(s, args("rank", "c")))
	assert.Equal(t, wire.Nil(), Dispatch(s, args("rank", "missing")))
}

func TestRange(t *testing.T) {
	s := store.New()
	for _, k := range []string{"e", "c", "a", "d", "b"} {
		Dispatch(s, args("set", k, "v"))
	}

	resp := Dispatch(s, args("range", "1", "3"))
	require.Equal(t, wire.TagArr, resp.Tag)
	require.Len(t, resp.Arr, 3)
	assert.Equal(t, "b", string(resp.Arr[0].Str))
	assert.Equal(t, "c", string(resp.Arr[1].Str))
	assert.Equal(t, "d", string(resp.Arr[2].Str))

	resp = Dispatch(s, args("range", "10", "5"))
	assert.Equal(t, wire.Arr(nil), resp)

	resp = Dispatch(s, args("range", "nope", "5"))
	assert.Equal(t, wire.Arr(nil), resp)
}

func TestRangeCursorHashIsStableAndDistinct(t *testing.T) {
	a := RangeCursorHash([]byte("1"), []byte("3"))
	b := RangeCursorHash([]byte("1"), []byte("3"))
	c := RangeCursorHash([]byte("2"), []byte("3"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
