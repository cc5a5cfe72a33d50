package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeChildSelection(t *testing.T) {
	tree := Select(map[string]*Tree{
		"author": Select(map[string]*Tree{"posts": Leaf()}),
		"tags":   nil,
	})

	author, ok := tree.ChildSelection("author")
	require.True(t, ok)
	_, ok = author.ChildSelection("posts")
	assert.True(t, ok)

	tags, ok := tree.ChildSelection("tags")
	require.True(t, ok)
	assert.NotNil(t, tags)

	_, ok = tree.ChildSelection("comments")
	assert.False(t, ok)

	var empty *Tree
	_, ok = empty.ChildSelection("author")
	assert.False(t, ok)
}

func TestTreeIntArgument(t *testing.T) {
	tree := Leaf().WithArgs(map[string]any{
		"limit":  3,
		"offset": int64(4),
		"page":   float64(2),
		"frac":   1.5,
		"name":   "x",
		"none":   nil,
	})

	assert.Equal(t, 3, tree.IntArgument("limit", 10))
	assert.Equal(t, 4, tree.IntArgument("offset", 0))
	assert.Equal(t, 2, tree.IntArgument("page", 0))
	assert.Equal(t, 7, tree.IntArgument("frac", 7))
	assert.Equal(t, 7, tree.IntArgument("name", 7))
	assert.Equal(t, 7, tree.IntArgument("none", 7))
	assert.Equal(t, 7, tree.IntArgument("missing", 7))
}

func TestChild(t *testing.T) {
	tree := Select(map[string]*Tree{
		"author": Select(map[string]*Tree{"posts": Leaf()}),
	})
	_, ok := Child(tree, "author", "posts")
	assert.True(t, ok)
	_, ok = Child(tree, "author", "comments")
	assert.False(t, ok)
	_, ok = Child(nil, "author")
	assert.False(t, ok)
}
