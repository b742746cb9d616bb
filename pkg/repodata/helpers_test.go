package repodata

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"testing"

	"gitledger/pkg/core"
	"gitledger/pkg/types"

	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

func mockID(input string) types.ObjectID {
	sum := sha1.Sum([]byte(input))
	return types.ObjectID(hex.EncodeToString(sum[:]))
}

// graph 是内存中的对象图，同时充当本地对象库和远端元数据源
type graph struct {
	objects map[types.ObjectID]*core.GitObject
	reads   int
}

func newGraph() *graph {
	return &graph{objects: make(map[types.ObjectID]*core.GitObject)}
}

func (g *graph) add(t *testing.T, name string, meta core.Metadata) types.ObjectID {
	t.Helper()
	obj, err := core.NewGitObject(mockID(name), []byte(name), meta)
	require.NoError(t, err)
	g.objects[obj.ID] = obj
	return obj.ID
}

func (g *graph) blob(t *testing.T, name string) types.ObjectID {
	t.Helper()
	return g.add(t, name, core.BlobMeta{})
}

func (g *graph) tree(t *testing.T, name string, entries []types.ObjectID, submodules ...types.ObjectID) types.ObjectID {
	t.Helper()
	return g.add(t, name, core.NewTreeMeta(entries, submodules))
}

func (g *graph) commit(t *testing.T, name string, tree types.ObjectID, parents ...types.ObjectID) types.ObjectID {
	t.Helper()
	return g.add(t, name, core.NewCommitMeta(tree, parents))
}

func (g *graph) tag(t *testing.T, name string, target types.ObjectID) types.ObjectID {
	t.Helper()
	return g.add(t, name, core.NewTagMeta(target))
}

func (g *graph) Object(id types.ObjectID) (*core.GitObject, error) {
	g.reads++
	obj, ok := g.objects[id]
	if !ok {
		return nil, &core.ObjectReadError{ID: id, Err: errMissing}
	}
	return obj, nil
}

func (g *graph) Has(id types.ObjectID) (bool, error) {
	_, ok := g.objects[id]
	return ok, nil
}

// remote 把 graph 适配为 MetadataSource
type remote struct{ *graph }

func (r remote) Object(_ context.Context, id types.ObjectID) (*core.GitObject, error) {
	return r.graph.Object(id)
}

// indexAll 把计划里的对象全部登记到索引
func indexAll(t *testing.T, rd *RepoData, plan *PushPlan) {
	t.Helper()
	for _, obj := range plan.Objects {
		added, err := rd.Append(obj.ID)
		require.NoError(t, err)
		require.True(t, added)
	}
	for _, id := range plan.Submodules {
		_, err := rd.AppendSubmoduleTip(id)
		require.NoError(t, err)
	}
}
