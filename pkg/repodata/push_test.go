package repodata

import (
	"testing"

	"gitledger/pkg/core"
	"gitledger/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateForPush_SingleCommitEmptyTree(t *testing.T) {
	g := newGraph()
	tree := g.tree(t, "empty-tree", nil)
	c1 := g.commit(t, "c1", tree)

	rd := New()
	plan, err := rd.EnumerateForPush(c1, g)
	require.NoError(t, err)

	assert.ElementsMatch(t, []types.ObjectID{c1, tree}, plan.IDs())
	assert.Empty(t, plan.Submodules)
}

func TestEnumerateForPush_ChildWithUnchangedTree(t *testing.T) {
	g := newGraph()
	tree := g.tree(t, "empty-tree", nil)
	c1 := g.commit(t, "c1", tree)
	c2 := g.commit(t, "c2", tree, c1)

	rd := New()
	first, err := rd.EnumerateForPush(c1, g)
	require.NoError(t, err)
	indexAll(t, rd, first)

	plan, err := rd.EnumerateForPush(c2, g)
	require.NoError(t, err)
	assert.Equal(t, []types.ObjectID{c2}, plan.IDs())
}

func TestEnumerateForPush_Idempotent(t *testing.T) {
	g := newGraph()
	a, b := g.blob(t, "a"), g.blob(t, "b")
	sub := g.tree(t, "sub", []types.ObjectID{b})
	root := g.tree(t, "root", []types.ObjectID{a, sub})
	c1 := g.commit(t, "c1", root)
	c2 := g.commit(t, "c2", root, c1)

	rd := New()
	p1, err := rd.EnumerateForPush(c2, g)
	require.NoError(t, err)
	p2, err := rd.EnumerateForPush(c2, g)
	require.NoError(t, err)

	assert.Equal(t, p1.IDs(), p2.IDs())
	assert.Len(t, p1.IDs(), 6)
}

func TestEnumerateForPush_DedupSharedObjects(t *testing.T) {
	g := newGraph()
	shared := g.blob(t, "shared")
	left := g.tree(t, "left", []types.ObjectID{shared})
	right := g.tree(t, "right", []types.ObjectID{shared})
	root := g.tree(t, "root", []types.ObjectID{left, right})
	c := g.commit(t, "c", root)

	rd := New()
	plan, err := rd.EnumerateForPush(c, g)
	require.NoError(t, err)

	seen := make(map[types.ObjectID]int)
	for _, obj := range plan.Objects {
		seen[obj.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "对象 %s 被重复安排", id)
	}
	assert.Len(t, plan.Objects, 5)
}

func TestEnumerateForPush_SkipsIndexed(t *testing.T) {
	g := newGraph()
	a := g.blob(t, "a")
	tree := g.tree(t, "tree", []types.ObjectID{a})
	c := g.commit(t, "c", tree)

	rd := New()
	_, err := rd.Append(tree)
	require.NoError(t, err)

	plan, err := rd.EnumerateForPush(c, g)
	require.NoError(t, err)

	// tree 已登记，它的子节点也不会被读取
	assert.Equal(t, []types.ObjectID{c}, plan.IDs())
}

func TestEnumerateForPush_Submodules(t *testing.T) {
	g := newGraph()
	a := g.blob(t, "a")
	subTip := mockID("submodule-commit") // 不在本地对象库里
	tree := g.tree(t, "tree", []types.ObjectID{a}, subTip)
	c := g.commit(t, "c", tree)

	rd := New()
	plan, err := rd.EnumerateForPush(c, g)
	require.NoError(t, err)

	assert.ElementsMatch(t, []types.ObjectID{c, tree, a}, plan.IDs())
	assert.Equal(t, []types.ObjectID{subTip}, plan.Submodules)
	assert.NotContains(t, plan.IDs(), subTip)
}

func TestEnumerateForPush_AnnotatedTag(t *testing.T) {
	g := newGraph()
	tree := g.tree(t, "tree", nil)
	c := g.commit(t, "c", tree)
	tag := g.tag(t, "v1", c)

	plan, err := New().EnumerateForPush(tag, g)
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.ObjectID{tag, c, tree}, plan.IDs())
}

func TestEnumerateForPush_ReadError(t *testing.T) {
	g := newGraph()
	missing := mockID("missing-parent")
	tree := g.tree(t, "tree", nil)
	c := g.commit(t, "c", tree, missing)

	_, err := New().EnumerateForPush(c, g)
	require.Error(t, err)

	var readErr *core.ObjectReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, missing, readErr.ID)
}

func TestPushPlan_Size(t *testing.T) {
	g := newGraph()
	a := g.blob(t, "abc")
	tree := g.tree(t, "tree", []types.ObjectID{a})

	plan, err := New().EnumerateForPush(tree, g)
	require.NoError(t, err)
	assert.Equal(t, int64(len("abc")+len("tree")), plan.Size())
	assert.Equal(t, 2, plan.Len())
}
