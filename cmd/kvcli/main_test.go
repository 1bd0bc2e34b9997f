package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariamtelly/kvserver/internal/wire"
)

func TestEncodeRequestMatchesWireDecode(t *testing.T) {
	frame := encodeRequest([]string{"set", "k", "v"})
	args, consumed, err := wire.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), consumed)
	assert.Equal(t, [][]byte{[]byte("set"), []byte("k"), []byte("v")}, args)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "(nil)", formatValue(wire.Nil()))
	assert.Equal(t, "hello", formatValue(wire.Str([]byte("hello"))))
	assert.Equal(t, "3", formatValue(wire.Int(3)))
	assert.Equal(t, "error(1): unknown command", formatValue(wire.Err(1, "unknown command")))
}
