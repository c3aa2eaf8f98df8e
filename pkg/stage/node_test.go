package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeIsHead(t *testing.T) {
	head := &Node{ID: 0}
	assert.True(t, head.IsHead())

	child := &Node{ID: 1, ParentsMask: 1 << 0}
	assert.False(t, child.IsHead())
}
