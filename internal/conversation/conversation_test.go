package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sdsdg/internal/tokens"
	"sdsdg/internal/types"
)

func TestConversationAppendAndDrop(t *testing.T) {
	c := New(tokens.Heuristic{})
	c.Append(types.RoleUser, "12345678")
	c.Append(types.RoleAssistant, "1234")
	c.Append(types.RoleUser, "123456789012")

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 6, c.Tokens())

	c.DropOldest(1)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "1234", c.Turns()[0].Content)
	assert.Equal(t, 4, c.Tokens())

	c.DropOldest(10)
	assert.Equal(t, 0, c.Len())
}

func TestSnapshotIsIndependent(t *testing.T) {
	c := New(nil)
	c.Append(types.RoleUser, "first")
	snap := c.Snapshot()
	c.Append(types.RoleAssistant, "second")

	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 2, c.Len())
}

func TestMessagesKeepOrder(t *testing.T) {
	c := New(nil)
	c.Append(types.RoleUser, "q")
	c.Append(types.RoleAssistant, "a")
	assert.Equal(t, []types.Message{
		{Role: types.RoleUser, Content: "q"},
		{Role: types.RoleAssistant, Content: "a"},
	}, c.Messages())
}

func TestNilConversation(t *testing.T) {
	var c *Conversation
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Tokens())
	assert.Nil(t, c.Messages())
	assert.Nil(t, c.Snapshot())
}
