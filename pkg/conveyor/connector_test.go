package conveyor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectorStartStop(t *testing.T) {
	c := NewConnector(2, 4)
	assert.True(t, c.IsStopped())
	c.Start()
	assert.False(t, c.IsStopped())
	c.Stop()
	assert.True(t, c.IsStopped())
}

func TestConnectorConveyorOutOfRangePanics(t *testing.T) {
	c := NewConnector(2, 4)
	assert.Panics(t, func() { c.Conveyor(2) })
	assert.Panics(t, func() { c.Conveyor(-1) })
}

func TestConnectorEmptyDataQueueDrainsEveryConveyor(t *testing.T) {
	c := NewConnector(2, 4)
	require.True(t, c.Conveyor(0).PushDataBuffer(testFrame(1)))
	require.True(t, c.Conveyor(1).PushDataBuffer(testFrame(2)))

	c.EmptyDataQueue()

	assert.Zero(t, c.Conveyor(0).GetBufferSize())
	assert.Zero(t, c.Conveyor(1).GetBufferSize())
}
