// Package command implements the dispatcher: it interprets a parsed
// request (an array of byte-string arguments) against the global store and
// produces the tagged response value the wire codec will encode.
package command

import (
	"github.com/cespare/xxhash/v2"

	"github.com/mariamtelly/kvserver/internal/store"
	"github.com/mariamtelly/kvserver/internal/wire"
)

// Message for the one ERR code the dispatcher itself produces (code 1); C4
// adds its own ERR(2, "too big") independently at the frame-encode boundary.
const (
	msgUnknownCommand = "unknown command"
)

// handler executes one verb against s and returns the response value.
type handler func(s *store.Store, args [][]byte) wire.Value

// table is the arity-checked dispatch table, keyed by verb. Each entry's
// arity is the exact argument count required, including the verb itself.
var table = map[string]struct {
	arity int
	fn    handler
}{
	"ping":    {1, doPing},
	"get":     {2, doGet},
	"set":     {3, doSet},
	"del":     {2, doDel},
	"keys":    {1, doKeys},
	"dbsize":  {1, doDBSize},
	"rank":    {2, doRank},
	"range":   {3, doRange},
	"members": {1, doMembers},
}

// Dispatch interprets args (args[0] is the verb) against s and returns the
// response value. An unrecognized verb or a wrong argument count is an ERR
// code 1 response; the connection is not closed for this.
func Dispatch(s *store.Store, args [][]byte) wire.Value {
	if len(args) == 0 {
		return wire.Err(wire.ErrUnknownCommand, msgUnknownCommand)
	}
	entry, ok := table[string(args[0])]
	if !ok || len(args) != entry.arity {
		return wire.Err(wire.ErrUnknownCommand, msgUnknownCommand)
	}
	return entry.fn(s, args)
}

func doPing(_ *store.Store, _ [][]byte) wire.Value {
	return wire.Str([]byte("PONG"))
}

func doGet(s *store.Store, args [][]byte) wire.Value {
	v, ok := s.Get(args[1])
	if !ok {
		return wire.Nil()
	}
	return wire.Str(v)
}

func doSet(s *store.Store, args [][]byte) wire.Value {
	s.Set(args[1], args[2])
	return wire.Nil()
}

func doDel(s *store.Store, args [][]byte) wire.Value {
	if s.Delete(args[1]) {
		return wire.Int(1)
	}
	return wire.Int(0)
}

func doKeys(s *store.Store, _ [][]byte) wire.Value {
	return wire.Arr(strsToValues(s.Keys()))
}

func doDBSize(s *store.Store, _ [][]byte) wire.Value {
	return wire.Int(int64(s.Len()))
}

// doMembers is the AVL-backed counterpart to keys: ascending key order
// instead of hash-bucket order.
func doMembers(s *store.Store, _ [][]byte) wire.Value {
	return wire.Arr(strsToValues(s.Members()))
}

// doRank returns a key's zero-based position in ascending key order, or NIL
// if it is absent.
func doRank(s *store.Store, args [][]byte) wire.Value {
	rank, ok := s.Rank(args[1])
	if !ok {
		return wire.Nil()
	}
	return wire.Int(int64(rank))
}

// doRange returns up to COUNT keys starting at zero-based ascending rank
// START. START and COUNT are decimal ASCII, matching the rest of the wire
// protocol's convention of passing arguments as byte strings.
func doRange(s *store.Store, args [][]byte) wire.Value {
	start, ok1 := parseNonNegativeInt(args[1])
	count, ok2 := parseNonNegativeInt(args[2])
	if !ok1 || !ok2 {
		return wire.Arr(nil)
	}
	keys := s.Range(start, count)
	if len(keys) == 0 {
		return wire.Arr(nil)
	}
	return wire.Arr(strsToValues(keys))
}

// RangeCursorHash folds a range query's (start, count) arguments into a
// single 64-bit token, used to correlate repeated range scans in log lines
// without carrying the raw arguments around. Not visible on the wire, so
// it is free to use a different hash than the dictionary's.
func RangeCursorHash(start, count []byte) uint64 {
	h := xxhash.New()
	h.Write(start)
	h.Write([]byte{0})
	h.Write(count)
	return h.Sum64()
}

func strsToValues(keys [][]byte) []wire.Value {
	out := make([]wire.Value, len(keys))
	for i, k := range keys {
		out[i] = wire.Str(k)
	}
	return out
}

func parseNonNegativeInt(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
