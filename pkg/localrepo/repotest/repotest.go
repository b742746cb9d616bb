// Package repotest 在内存 git 仓库里构造对象图，供测试使用
package repotest

import (
	"sort"
	"testing"
	"time"

	"gitledger/pkg/core"
	"gitledger/pkg/localrepo"
	"gitledger/pkg/types"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// Builder 持有一个内存仓库
type Builder struct {
	t    testing.TB
	Git  *git.Repository
	Repo *localrepo.Repo

	tick int
}

func New(t testing.TB) *Builder {
	t.Helper()
	r, err := git.Init(memory.NewStorage(), nil)
	require.NoError(t, err)
	return &Builder{t: t, Git: r, Repo: localrepo.New(r)}
}

// Entry 是树中的一项
type Entry struct {
	Name string
	ID   types.ObjectID
	Mode filemode.FileMode
}

func File(name string, id types.ObjectID) Entry {
	return Entry{Name: name, ID: id, Mode: filemode.Regular}
}

func Dir(name string, id types.ObjectID) Entry {
	return Entry{Name: name, ID: id, Mode: filemode.Dir}
}

// Submodule 是一个 gitlink 条目，它指向的 commit 不在本仓库
func Submodule(name string, id types.ObjectID) Entry {
	return Entry{Name: name, ID: id, Mode: filemode.Submodule}
}

type encoder interface {
	Encode(plumbing.EncodedObject) error
}

func (b *Builder) store(obj encoder) types.ObjectID {
	b.t.Helper()
	eo := b.Git.Storer.NewEncodedObject()
	require.NoError(b.t, obj.Encode(eo))
	h, err := b.Git.Storer.SetEncodedObject(eo)
	require.NoError(b.t, err)
	return types.ObjectID(h.String())
}

func (b *Builder) Blob(content string) types.ObjectID {
	b.t.Helper()
	id, err := b.Repo.Write(core.KindBlob, []byte(content))
	require.NoError(b.t, err)
	return id
}

func (b *Builder) Tree(entries ...Entry) types.ObjectID {
	b.t.Helper()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	tree := &object.Tree{}
	for _, e := range entries {
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: e.Name,
			Mode: e.Mode,
			Hash: plumbing.NewHash(string(e.ID)),
		})
	}
	return b.store(tree)
}

func (b *Builder) signature() object.Signature {
	b.tick++
	return object.Signature{
		Name:  "Test",
		Email: "test@example.com",
		When:  time.Unix(1700000000+int64(b.tick), 0).UTC(),
	}
}

func (b *Builder) Commit(msg string, tree types.ObjectID, parents ...types.ObjectID) types.ObjectID {
	b.t.Helper()
	sig := b.signature()
	c := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   msg,
		TreeHash:  plumbing.NewHash(string(tree)),
	}
	for _, p := range parents {
		c.ParentHashes = append(c.ParentHashes, plumbing.NewHash(string(p)))
	}
	return b.store(c)
}

// Tag 创建指向 commit 的附注标签
func (b *Builder) Tag(name string, target types.ObjectID) types.ObjectID {
	b.t.Helper()
	return b.store(&object.Tag{
		Name:       name,
		Tagger:     b.signature(),
		Message:    name + "\n",
		TargetType: plumbing.CommitObject,
		Target:     plumbing.NewHash(string(target)),
	})
}

func (b *Builder) SetRef(name string, id types.ObjectID) {
	b.t.Helper()
	require.NoError(b.t, b.Repo.UpdateRef(name, id))
}
