package conveyor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnstream-go/cnstream/pkg/frame"
)

func testFrame(id uint64) *frame.Frame {
	return frame.New(nil, "s1", 0, int64(id), id, 0)
}

func TestConveyorPushFailsWhenFull(t *testing.T) {
	c := New(2)
	assert.True(t, c.PushDataBuffer(testFrame(1)))
	assert.True(t, c.PushDataBuffer(testFrame(2)))
	assert.False(t, c.PushDataBuffer(testFrame(3)))
	assert.EqualValues(t, 1, c.GetFailTime())
}

func TestConveyorPushResetsFailTimeOnSuccess(t *testing.T) {
	c := New(1)
	require.True(t, c.PushDataBuffer(testFrame(1)))
	assert.False(t, c.PushDataBuffer(testFrame(2)))
	assert.EqualValues(t, 1, c.GetFailTime())

	require.NotNil(t, c.PopDataBuffer())
	assert.True(t, c.PushDataBuffer(testFrame(3)))
	assert.Zero(t, c.GetFailTime())
}

func TestConveyorPopReturnsNilOnTimeout(t *testing.T) {
	c := New(1)
	start := time.Now()
	got := c.PopDataBuffer()
	assert.Nil(t, got)
	assert.GreaterOrEqual(t, time.Since(start), popTimeout)
}

func TestConveyorPopFIFOOrder(t *testing.T) {
	c := New(3)
	for i := uint64(1); i <= 3; i++ {
		require.True(t, c.PushDataBuffer(testFrame(i)))
	}
	for i := uint64(1); i <= 3; i++ {
		got := c.PopDataBuffer()
		require.NotNil(t, got)
		assert.Equal(t, i, got.FrameID)
	}
}

func TestConveyorPopAllDataBufferDrainsWithoutBlocking(t *testing.T) {
	c := New(3)
	for i := uint64(1); i <= 2; i++ {
		require.True(t, c.PushDataBuffer(testFrame(i)))
	}
	drained := c.PopAllDataBuffer()
	assert.Len(t, drained, 2)
	assert.Empty(t, c.PopAllDataBuffer())
}
