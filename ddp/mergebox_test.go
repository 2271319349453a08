package ddp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeBox_SharedDocument(t *testing.T) {
	box := newMergeBox()
	key := docKey{"orders", "o1"}

	msg := box.added("s1", key, map[string]any{"status": "open", "sub_s1": 1})
	require.NotNil(t, msg)
	assert.Equal(t, "added", msg.Msg)

	// Second subscription adds the same document with one new field
	msg = box.added("s2", key, map[string]any{"status": "open", "sub_s2": 1})
	require.NotNil(t, msg)
	assert.Equal(t, "changed", msg.Msg)
	assert.Equal(t, map[string]any{"sub_s2": 1}, msg.Fields)

	// First subscription drops it: its marker is cleared, the doc stays
	msg = box.removed("s1", key)
	require.NotNil(t, msg)
	assert.Equal(t, "changed", msg.Msg)
	assert.Equal(t, []string{"sub_s1"}, msg.Cleared)

	msg = box.removed("s2", key)
	require.NotNil(t, msg)
	assert.Equal(t, "removed", msg.Msg)
	assert.Equal(t, 0, box.size())
}

func TestMergeBox_ChangedClearsNilFields(t *testing.T) {
	box := newMergeBox()
	key := docKey{"orders", "o1"}
	box.added("s1", key, map[string]any{"a": 1, "b": 2})

	msg, ok := box.changed("s1", key, map[string]any{"a": 1, "b": nil, "c": 3})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"c": 3}, msg.Fields)
	assert.Equal(t, []string{"b"}, msg.Cleared)

	msg, ok = box.changed("s1", key, map[string]any{"a": 1})
	assert.True(t, ok)
	assert.Nil(t, msg, "no-op change sends nothing")

	_, ok = box.changed("s2", key, map[string]any{"a": 2})
	assert.False(t, ok)
}

func TestMergeBox_EarliestContributorWins(t *testing.T) {
	box := newMergeBox()
	key := docKey{"orders", "o1"}
	box.added("s1", key, map[string]any{"v": "one"})

	msg := box.added("s2", key, map[string]any{"v": "two"})
	assert.Nil(t, msg)

	msg = box.removed("s1", key)
	require.NotNil(t, msg)
	assert.Equal(t, map[string]any{"v": "two"}, msg.Fields)
}

func TestMergeBox_DropSub(t *testing.T) {
	box := newMergeBox()
	box.added("s1", docKey{"orders", "o1"}, map[string]any{})
	box.added("s1", docKey{"orders", "o2"}, map[string]any{})
	box.added("s2", docKey{"orders", "o2"}, map[string]any{})

	msgs := box.dropSub("s1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "removed", msgs[0].Msg)
	assert.Equal(t, "o1", msgs[0].ID)
	assert.Equal(t, 1, box.size())
}
