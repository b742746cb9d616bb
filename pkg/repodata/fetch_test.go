package repodata

import (
	"context"
	"testing"

	"gitledger/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushAll 模拟一次完整推送：把 root 的闭包全部登记到索引
func pushAll(t *testing.T, rd *RepoData, g *graph, root types.ObjectID) {
	t.Helper()
	plan, err := rd.EnumerateForPush(root, g)
	require.NoError(t, err)
	indexAll(t, rd, plan)
}

func TestEnumerateForFetch_IntoEmptyRepo(t *testing.T) {
	g := newGraph()
	tree := g.tree(t, "empty-tree", nil)
	c1 := g.commit(t, "c1", tree)
	c2 := g.commit(t, "c2", tree, c1)

	rd := New()
	pushAll(t, rd, g, c2)

	plan, err := rd.EnumerateForFetch(context.Background(), c2, newGraph(), remote{g}, FetchOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []types.ObjectID{c2, c1, tree}, plan.IDs)
	assert.Equal(t, c2, plan.IDs[0])

	for _, id := range plan.IDs {
		obj, ok := plan.Object(id)
		require.True(t, ok)
		assert.Equal(t, id, obj.ID)
	}

	// 依赖在前
	ordered := plan.Ordered()
	assert.Equal(t, c2, ordered[len(ordered)-1].ID)
}

func TestFetchPlan_OrderedPutsDependenciesFirst(t *testing.T) {
	g := newGraph()
	shared := g.blob(t, "shared")
	oldTree := g.tree(t, "old-tree", []types.ObjectID{shared})
	newTree := g.tree(t, "new-tree", []types.ObjectID{shared, g.blob(t, "extra")})
	parent := g.commit(t, "parent", oldTree)
	tip := g.commit(t, "tip", newTree, parent)

	rd := New()
	pushAll(t, rd, g, tip)

	plan, err := rd.EnumerateForFetch(context.Background(), tip, newGraph(), remote{g}, FetchOptions{})
	require.NoError(t, err)

	ordered := plan.Ordered()
	require.Len(t, ordered, plan.Len())

	pos := make(map[types.ObjectID]int, len(ordered))
	for i, obj := range ordered {
		pos[obj.ID] = i
	}
	require.Len(t, pos, plan.Len(), "每个对象只出现一次")

	for _, obj := range ordered {
		for _, link := range obj.Meta.Links() {
			assert.Less(t, pos[link], pos[obj.ID], "%s 应排在 %s 之前", link, obj.ID)
		}
	}
	assert.Equal(t, tip, ordered[len(ordered)-1].ID)
}

func TestEnumerateForFetch_SkipsLocal(t *testing.T) {
	g := newGraph()
	tree := g.tree(t, "tree", nil)
	c1 := g.commit(t, "c1", tree)
	c2 := g.commit(t, "c2", tree, c1)

	rd := New()
	pushAll(t, rd, g, c2)

	// 本地已有 c1 (以及它的闭包)
	local := newGraph()
	local.objects[c1] = g.objects[c1]
	local.objects[tree] = g.objects[tree]

	plan, err := rd.EnumerateForFetch(context.Background(), c2, local, remote{g}, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []types.ObjectID{c2}, plan.IDs)
}

func TestEnumerateForFetch_NothingMissing(t *testing.T) {
	g := newGraph()
	c := g.commit(t, "c", g.tree(t, "tree", nil))

	rd := New()
	pushAll(t, rd, g, c)

	plan, err := rd.EnumerateForFetch(context.Background(), c, g, remote{g}, FetchOptions{})
	require.NoError(t, err)
	assert.Zero(t, plan.Len())
}

func TestEnumerateForFetch_NotIndexed(t *testing.T) {
	g := newGraph()
	c := g.commit(t, "c", g.tree(t, "tree", nil))

	_, err := New().EnumerateForFetch(context.Background(), c, newGraph(), remote{g}, FetchOptions{})
	assert.ErrorIs(t, err, ErrObjectNotIndexed)
}

// submoduleFixture: root tree 里有一个子模块和一个普通子目录
func submoduleFixture(t *testing.T) (g *graph, rd *RepoData, commit, subTip, deep types.ObjectID) {
	t.Helper()
	g = newGraph()
	deep = g.blob(t, "deep")
	dir := g.tree(t, "dir", []types.ObjectID{deep})
	subTip = mockID("submodule-commit")
	root := g.tree(t, "root", []types.ObjectID{dir}, subTip)
	commit = g.commit(t, "c", root)

	rd = New()
	pushAll(t, rd, g, commit)
	return g, rd, commit, subTip, deep
}

func TestEnumerateForFetch_SubmoduleSkipsOnlyBranch(t *testing.T) {
	g, rd, commit, subTip, deep := submoduleFixture(t)

	plan, err := rd.EnumerateForFetch(context.Background(), commit, newGraph(), remote{g}, FetchOptions{})
	require.NoError(t, err)

	assert.Len(t, plan.IDs, 4)
	assert.Contains(t, plan.IDs, deep, "子模块之后的工作项必须继续处理")
	assert.NotContains(t, plan.IDs, subTip)
	assert.Equal(t, []types.ObjectID{subTip}, plan.Submodules)
	assert.False(t, plan.Truncated)
}

func TestEnumerateForFetch_StopAtSubmodule(t *testing.T) {
	g, rd, commit, subTip, deep := submoduleFixture(t)

	plan, err := rd.EnumerateForFetch(context.Background(), commit, newGraph(), remote{g}, FetchOptions{StopAtSubmodule: true})
	require.NoError(t, err)

	// 子模块条目排序后位于栈顶之下还是之上取决于 ID；只断言旧行为的特征
	assert.Equal(t, []types.ObjectID{subTip}, plan.Submodules)
	assert.NotContains(t, plan.IDs, subTip)
	if plan.Truncated {
		assert.Less(t, len(plan.IDs), 4)
	} else {
		assert.Contains(t, plan.IDs, deep)
	}
}

func TestEnumerateForFetch_LegacyAnonymousTip(t *testing.T) {
	g := newGraph()
	subTip := mockID("submodule-commit")
	root := g.tree(t, "root", nil, subTip)
	c := g.commit(t, "c", root)

	// 旧索引：子模块只留下匿名占位符，但树的元数据仍然标记了它
	rd := New()
	_, err := rd.Append(c)
	require.NoError(t, err)
	_, err = rd.Append(root)
	require.NoError(t, err)
	rd.push(ObjectRef{Submodule: true})

	plan, err := rd.EnumerateForFetch(context.Background(), c, newGraph(), remote{g}, FetchOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.ObjectID{c, root}, plan.IDs)
}

func TestEnumerateForFetch_Cancelled(t *testing.T) {
	g := newGraph()
	c := g.commit(t, "c", g.tree(t, "tree", nil))
	rd := New()
	pushAll(t, rd, g, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rd.EnumerateForFetch(ctx, c, newGraph(), remote{g}, FetchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
