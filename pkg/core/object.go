package core

import (
	"fmt"
	"slices"

	"gitledger/pkg/types"
)

// ObjectKind 定义了 git 的四种对象类型
type ObjectKind string

const (
	KindCommit ObjectKind = "commit"
	KindTree   ObjectKind = "tree"
	KindBlob   ObjectKind = "blob"
	KindTag    ObjectKind = "tag"
)

func (k ObjectKind) String() string { return string(k) }

func (k ObjectKind) IsValid() bool {
	switch k {
	case KindCommit, KindTree, KindBlob, KindTag:
		return true
	}
	return false
}

// Metadata 是对象类型相关的元数据 (封闭的四选一)
// Links 返回该对象依赖的全部对象 ID，遍历算法依赖它的完整性
type Metadata interface {
	Kind() ObjectKind
	Links() []types.ObjectID
	isMetadata()
}

// CommitMeta 记录 commit 的父节点集合和根树
type CommitMeta struct {
	Parents []types.ObjectID
	Tree    types.ObjectID
}

// TagMeta 记录附注标签指向的目标对象
type TagMeta struct {
	Target types.ObjectID
}

// TreeMeta 记录目录树的全部条目
// Submodules 是 Entries 的子集：模式为 gitlink (commit) 的条目，即子模块的 tip
type TreeMeta struct {
	Entries    []types.ObjectID
	Submodules []types.ObjectID
}

// BlobMeta 没有额外信息，内容全部在 Raw 里
type BlobMeta struct{}

func NewCommitMeta(tree types.ObjectID, parents []types.ObjectID) CommitMeta {
	return CommitMeta{Parents: sortedSet(parents), Tree: tree}
}

func NewTagMeta(target types.ObjectID) TagMeta {
	return TagMeta{Target: target}
}

// NewTreeMeta 会把 submodules 并入 entries，保证子集关系
func NewTreeMeta(entries, submodules []types.ObjectID) TreeMeta {
	all := make([]types.ObjectID, 0, len(entries)+len(submodules))
	all = append(all, entries...)
	all = append(all, submodules...)
	return TreeMeta{Entries: sortedSet(all), Submodules: sortedSet(submodules)}
}

func (CommitMeta) Kind() ObjectKind { return KindCommit }
func (TagMeta) Kind() ObjectKind    { return KindTag }
func (TreeMeta) Kind() ObjectKind   { return KindTree }
func (BlobMeta) Kind() ObjectKind   { return KindBlob }

func (m CommitMeta) Links() []types.ObjectID {
	links := make([]types.ObjectID, 0, len(m.Parents)+1)
	links = append(links, m.Tree)
	return append(links, m.Parents...)
}

func (m TagMeta) Links() []types.ObjectID  { return []types.ObjectID{m.Target} }
func (m TreeMeta) Links() []types.ObjectID { return slices.Clone(m.Entries) }
func (BlobMeta) Links() []types.ObjectID   { return nil }

// IsSubmodule 判断某个条目是否为子模块 tip
func (m TreeMeta) IsSubmodule(id types.ObjectID) bool {
	_, found := slices.BinarySearch(m.Submodules, id)
	return found
}

func (CommitMeta) isMetadata() {}
func (TagMeta) isMetadata()    {}
func (TreeMeta) isMetadata()   {}
func (BlobMeta) isMetadata()   {}

// GitObject 是一个 git 对象的可移植表示
// Raw 是不带 "<type> <size>\0" 头部的原始内容，本地对象库凭它即可重建对象
type GitObject struct {
	ID   types.ObjectID
	Raw  []byte
	Meta Metadata
}

// NewGitObject 校验并规范化一个对象
// 集合会被排序去重，空 Raw 统一为 nil，保证 Encode 的确定性
func NewGitObject(id types.ObjectID, raw []byte, meta Metadata) (*GitObject, error) {
	if !id.IsValid() {
		return nil, fmt.Errorf("invalid object id %q", id)
	}
	if meta == nil {
		return nil, fmt.Errorf("object %s: %w: missing metadata", id, ErrUnsupportedKind)
	}
	if len(raw) == 0 {
		raw = nil
	}

	switch m := meta.(type) {
	case CommitMeta:
		meta = NewCommitMeta(m.Tree, m.Parents)
	case TreeMeta:
		meta = NewTreeMeta(m.Entries, m.Submodules)
	case TagMeta, BlobMeta:
	default:
		return nil, fmt.Errorf("object %s: %w: %T", id, ErrUnsupportedKind, meta)
	}

	for _, link := range meta.Links() {
		if !link.IsValid() {
			return nil, fmt.Errorf("object %s references invalid id %q", id, link)
		}
	}

	return &GitObject{ID: id, Raw: raw, Meta: meta}, nil
}

func (o *GitObject) Kind() ObjectKind { return o.Meta.Kind() }
func (o *GitObject) Size() int64      { return int64(len(o.Raw)) }

func sortedSet(ids []types.ObjectID) []types.ObjectID {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
