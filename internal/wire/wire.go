// Package wire implements the binary request/response codec: a
// length-prefixed request envelope carrying an array of byte strings, and a
// tagged-value response envelope. Every integer on the wire is
// little-endian; DBL values are IEEE-754 in little-endian byte order.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const headerLen = 4 // u32 body_len

// MaxMessage and MaxArgs bound a single request body. They are package
// vars, not consts, so internal/config can override them at startup the
// same way dict's RehashLoadFactor/MigrateQuantum are overridden; every
// connection shares the same process-wide limits.
var (
	MaxMessage = 32 * 1024 * 1024
	MaxArgs    = 200000
)

// Tag identifies the shape of a response value.
type Tag byte

const (
	TagNil Tag = 0
	TagErr Tag = 1
	TagStr Tag = 2
	TagInt Tag = 3
	TagDbl Tag = 4
	TagArr Tag = 5
)

// Error codes used in ERR values.
const (
	ErrUnknownCommand = int32(1)
	ErrTooBig         = int32(2)
)

// ErrIncomplete signals that Decode does not yet have a full frame buffered;
// the caller should read more bytes and retry. It is not a protocol error.
var ErrIncomplete = errors.New("wire: incomplete frame")

// ErrMalformed signals a request the protocol declares invalid; the
// connection carrying it is dropped without a reply.
var ErrMalformed = errors.New("wire: malformed frame")

// Decode attempts to parse one request frame from the head of buf. It
// returns the decoded argument strings, the total number of bytes the frame
// occupied (so the caller can consume exactly that many from its ingress
// buffer), and an error.
//
// If buf does not yet contain a complete frame, it returns ErrIncomplete and
// the caller should wait for more data. Any other error is a protocol
// violation and the connection must be closed without a response.
func Decode(buf []byte) (args [][]byte, consumed int, err error) {
	if len(buf) < headerLen {
		return nil, 0, ErrIncomplete
	}
	bodyLen := binary.LittleEndian.Uint32(buf[:headerLen])
	if bodyLen == 0 {
		return nil, 0, errors.Wrap(ErrMalformed, "body_len 0 (missing nstr prefix)")
	}
	if bodyLen > uint32(MaxMessage) {
		return nil, 0, errors.Wrapf(ErrMalformed, "body_len %d exceeds MAX_MESSAGE", bodyLen)
	}
	frameLen := headerLen + int(bodyLen)
	if len(buf) < frameLen {
		return nil, 0, ErrIncomplete
	}

	body := buf[headerLen:frameLen]
	if len(body) < 4 {
		return nil, 0, errors.Wrap(ErrMalformed, "body too short for nstr")
	}
	nstr := binary.LittleEndian.Uint32(body[:4])
	if nstr > uint32(MaxArgs) {
		return nil, 0, errors.Wrapf(ErrMalformed, "nstr %d exceeds MAX_ARGS", nstr)
	}

	rest := body[4:]
	out := make([][]byte, 0, nstr)
	for i := uint32(0); i < nstr; i++ {
		if len(rest) < 4 {
			return nil, 0, errors.Wrap(ErrMalformed, "truncated string length")
		}
		sz := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint64(sz) > uint64(len(rest)) {
			return nil, 0, errors.Wrap(ErrMalformed, "string length overflows remaining buffer")
		}
		s := make([]byte, sz)
		copy(s, rest[:sz])
		rest = rest[sz:]
		out = append(out, s)
	}
	if len(rest) != 0 {
		return nil, 0, errors.Wrap(ErrMalformed, "trailing garbage after nstr strings")
	}
	return out, frameLen, nil
}

// Value is a response value in the tagged encoding. Exactly one of the
// typed fields is meaningful, selected by Tag.
type Value struct {
	Tag Tag

	ErrCode int32
	ErrMsg  string
	Str     []byte
	Int     int64
	Dbl     float64
	Arr     []Value
}

func Nil() Value { return Value{Tag: TagNil} }
func Err(code int32, msg string) Value {
	return Value{Tag: TagErr, ErrCode: code, ErrMsg: msg}
}
func Str(b []byte) Value { return Value{Tag: TagStr, Str: b} }
func Int(n int64) Value { return Value{Tag: TagInt, Int: n} }
func Dbl(f float64) Value { return Value{Tag: TagDbl, Dbl: f} }
func Arr(vs []Value) Value { return Value{Tag: TagArr, Arr: vs} }

// Encode appends v's tagged-value encoding to dst and returns the result.
func Encode(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.Tag))
	switch v.Tag {
	case TagNil:
		// no body
	case TagErr:
		dst = appendU32(dst, uint32(int32(v.ErrCode)))
		dst = appendU32(dst, uint32(len(v.ErrMsg)))
		dst = append(dst, v.ErrMsg...)
	case TagStr:
		dst = appendU32(dst, uint32(len(v.Str)))
		dst = append(dst, v.Str...)
	case TagInt:
		dst = appendU64(dst, uint64(v.Int))
	case TagDbl:
		dst = appendU64(dst, math.Float64bits(v.Dbl))
	case TagArr:
		dst = appendU32(dst, uint32(len(v.Arr)))
		for _, elem := range v.Arr {
			dst = Encode(dst, elem)
		}
	}
	return dst
}

// EncodeFrame encodes v as a complete response frame (u32 body_len prefix
// plus body). If the resulting body would exceed MaxMessage, it is replaced
// with a single ERR value signaling the overflow; the peer's connection
// stays open.
func EncodeFrame(v Value) []byte {
	body := Encode(nil, v)
	if len(body) > MaxMessage {
		body = Encode(nil, Err(ErrTooBig, "too big"))
	}
	frame := make([]byte, 0, headerLen+len(body))
	frame = appendU32(frame, uint32(len(body)))
	frame = append(frame, body...)
	return frame
}

func appendU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendU64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// DecodeValue parses one tagged value from the head of buf, returning the
// value, the number of bytes it occupied, and an error. It is the inverse
// of Encode; cmd/kvcli uses it to render a server's response.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, ErrIncomplete
	}
	tag := Tag(buf[0])
	rest := buf[1:]
	consumed := 1

	readU32 := func() (uint32, error) {
		if len(rest) < 4 {
			return 0, ErrIncomplete
		}
		v := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		consumed += 4
		return v, nil
	}
	readU64 := func() (uint64, error) {
		if len(rest) < 8 {
			return 0, ErrIncomplete
		}
		v := binary.LittleEndian.Uint64(rest[:8])
		rest = rest[8:]
		consumed += 8
		return v, nil
	}
	readBytes := func(n uint32) ([]byte, error) {
		if uint64(n) > uint64(len(rest)) {
			return nil, ErrIncomplete
		}
		b := make([]byte, n)
		copy(b, rest[:n])
		rest = rest[n:]
		consumed += int(n)
		return b, nil
	}

	switch tag {
	case TagNil:
		return Nil(), consumed, nil
	case TagErr:
		code, err := readU32()
		if err != nil {
			return Value{}, 0, err
		}
		n, err := readU32()
		if err != nil {
			return Value{}, 0, err
		}
		msg, err := readBytes(n)
		if err != nil {
			return Value{}, 0, err
		}
		return Err(int32(code), string(msg)), consumed, nil
	case TagStr:
		n, err := readU32()
		if err != nil {
			return Value{}, 0, err
		}
		s, err := readBytes(n)
		if err != nil {
			return Value{}, 0, err
		}
		return Str(s), consumed, nil
	case TagInt:
		v, err := readU64()
		if err != nil {
			return Value{}, 0, err
		}
		return Int(int64(v)), consumed, nil
	case TagDbl:
		v, err := readU64()
		if err != nil {
			return Value{}, 0, err
		}
		return Dbl(math.Float64frombits(v)), consumed, nil
	case TagArr:
		n, err := readU32()
		if err != nil {
			return Value{}, 0, err
		}
		var elems []Value
		if n > 0 {
			elems = make([]Value, 0, n)
		}
		for i := uint32(0); i < n; i++ {
			elem, used, err := DecodeValue(rest)
			if err != nil {
				return Value{}, 0, err
			}
			rest = rest[used:]
			consumed += used
			elems = append(elems, elem)
		}
		return Arr(elems), consumed, nil
	default:
		return Value{}, 0, errors.Errorf("wire: unknown tag %d", tag)
	}
}
