package netio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendConsume(t *testing.T) {
	var b Buffer
	b.Append([]byte("hello"))
	b.Append([]byte(" world"))
	assert.Equal(t, "hello world", string(b.Bytes()))
	assert.Equal(t, 11, b.Len())

	b.Consume(6)
	assert.Equal(t, "world", string(b.Bytes()))
	assert.Equal(t, 5, b.Len())

	b.Consume(5)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Bytes())
}

func TestAppendAfterFullDrainDoesNotAccumulateDeadSpace(t *testing.T) {
	var b Buffer
	for i := 0; i < 1000; i++ {
		b.Append([]byte("xy"))
		b.Consume(2)
	}
	assert.Equal(t, 0, b.Len())
	assert.LessOrEqual(t, cap(b.buf), 64, "fully-drained buffer should reset rather than grow unbounded")
}

func TestConsumeReclaimsDeadSpaceOnLargeBacklog(t *testing.T) {
	var b Buffer
	b.Append(make([]byte, 10000))
	b.Consume(9000)
	before := cap(b.buf)
	b.Append([]byte("more"))
	assert.LessOrEqual(t, cap(b.buf), before+100, "reclaiming should keep capacity bounded instead of growing past dead space")
}
