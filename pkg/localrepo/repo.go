// Package localrepo 把本地 git 对象库 (go-git) 适配为同步引擎需要的读写接口
package localrepo

import (
	"errors"
	"fmt"
	"io"

	"gitledger/pkg/core"
	"gitledger/pkg/types"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	// ErrUnsupportedHash 表示对象 ID 不是 go-git 能处理的 SHA-1
	ErrUnsupportedHash = errors.New("unsupported object hash")
	// ErrUnpeelable 表示 ref 既不指向附注标签也不指向 commit
	ErrUnpeelable = errors.New("reference does not peel to a tag or commit")
)

// Repo 是本地对象库
type Repo struct {
	repo *git.Repository
}

// Open 打开工作区或 bare 仓库 (会向上查找 .git)
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", path, err)
	}
	return New(r), nil
}

// New 包装一个已经打开的仓库 (测试里通常是内存存储)
func New(r *git.Repository) *Repo {
	return &Repo{repo: r}
}

func toHash(id types.ObjectID) (plumbing.Hash, error) {
	if len(id) != 40 || !id.IsValid() {
		return plumbing.ZeroHash, fmt.Errorf("%w: %q", ErrUnsupportedHash, id)
	}
	return plumbing.NewHash(string(id)), nil
}

func toKind(t plumbing.ObjectType) (core.ObjectKind, error) {
	switch t {
	case plumbing.CommitObject:
		return core.KindCommit, nil
	case plumbing.TreeObject:
		return core.KindTree, nil
	case plumbing.BlobObject:
		return core.KindBlob, nil
	case plumbing.TagObject:
		return core.KindTag, nil
	default:
		return "", fmt.Errorf("%w: %s", core.ErrUnsupportedKind, t)
	}
}

func toObjectType(k core.ObjectKind) (plumbing.ObjectType, error) {
	switch k {
	case core.KindCommit:
		return plumbing.CommitObject, nil
	case core.KindTree:
		return plumbing.TreeObject, nil
	case core.KindBlob:
		return plumbing.BlobObject, nil
	case core.KindTag:
		return plumbing.TagObject, nil
	default:
		return plumbing.InvalidObject, fmt.Errorf("%w: %s", core.ErrUnsupportedKind, k)
	}
}

func (r *Repo) encoded(id types.ObjectID) (plumbing.EncodedObject, error) {
	h, err := toHash(id)
	if err != nil {
		return nil, &core.ObjectReadError{ID: id, Err: err}
	}
	eo, err := r.repo.Storer.EncodedObject(plumbing.AnyObject, h)
	if err != nil {
		return nil, &core.ObjectReadError{ID: id, Err: err}
	}
	return eo, nil
}

// raw 读取不带头部的原始内容
func (r *Repo) raw(id types.ObjectID) ([]byte, error) {
	eo, err := r.encoded(id)
	if err != nil {
		return nil, err
	}
	return readEncoded(id, eo)
}

func readEncoded(id types.ObjectID, eo plumbing.EncodedObject) ([]byte, error) {
	rc, err := eo.Reader()
	if err != nil {
		return nil, &core.ObjectReadError{ID: id, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &core.ObjectReadError{ID: id, Err: err}
	}
	return data, nil
}

// Object 读取一个对象并转换为可移植表示
func (r *Repo) Object(id types.ObjectID) (*core.GitObject, error) {
	eo, err := r.encoded(id)
	if err != nil {
		return nil, err
	}

	switch eo.Type() {
	case plumbing.CommitObject:
		c, err := object.DecodeCommit(r.repo.Storer, eo)
		if err != nil {
			return nil, &core.ObjectReadError{ID: id, Err: err}
		}
		return r.FromCommit(c)
	case plumbing.TreeObject:
		t, err := object.DecodeTree(r.repo.Storer, eo)
		if err != nil {
			return nil, &core.ObjectReadError{ID: id, Err: err}
		}
		return r.FromTree(t)
	case plumbing.TagObject:
		t, err := object.DecodeTag(r.repo.Storer, eo)
		if err != nil {
			return nil, &core.ObjectReadError{ID: id, Err: err}
		}
		return r.FromTag(t)
	case plumbing.BlobObject:
		b, err := object.DecodeBlob(eo)
		if err != nil {
			return nil, &core.ObjectReadError{ID: id, Err: err}
		}
		return r.FromBlob(b)
	default:
		return nil, fmt.Errorf("object %s: %w: %s", id, core.ErrUnsupportedKind, eo.Type())
	}
}

// FromCommit: 父节点集合 + 根树
func (r *Repo) FromCommit(c *object.Commit) (*core.GitObject, error) {
	id := types.ObjectID(c.Hash.String())
	raw, err := r.raw(id)
	if err != nil {
		return nil, err
	}

	parents := make([]types.ObjectID, len(c.ParentHashes))
	for i, p := range c.ParentHashes {
		parents[i] = types.ObjectID(p.String())
	}
	return core.NewGitObject(id, raw, core.NewCommitMeta(types.ObjectID(c.TreeHash.String()), parents))
}

// FromTree: 全部条目；gitlink (子模块) 条目单独标记
func (r *Repo) FromTree(t *object.Tree) (*core.GitObject, error) {
	id := types.ObjectID(t.Hash.String())
	raw, err := r.raw(id)
	if err != nil {
		return nil, err
	}

	var entries, submodules []types.ObjectID
	for _, e := range t.Entries {
		eid := types.ObjectID(e.Hash.String())
		if e.Mode == filemode.Submodule {
			submodules = append(submodules, eid)
			continue
		}
		entries = append(entries, eid)
	}
	return core.NewGitObject(id, raw, core.NewTreeMeta(entries, submodules))
}

// FromTag: 附注标签指向的目标
func (r *Repo) FromTag(t *object.Tag) (*core.GitObject, error) {
	id := types.ObjectID(t.Hash.String())
	raw, err := r.raw(id)
	if err != nil {
		return nil, err
	}
	return core.NewGitObject(id, raw, core.NewTagMeta(types.ObjectID(t.Target.String())))
}

func (r *Repo) FromBlob(b *object.Blob) (*core.GitObject, error) {
	id := types.ObjectID(b.Hash.String())
	raw, err := r.raw(id)
	if err != nil {
		return nil, err
	}
	return core.NewGitObject(id, raw, core.BlobMeta{})
}

// Has 只探测对象是否存在，不读取内容
func (r *Repo) Has(id types.ObjectID) (bool, error) {
	h, err := toHash(id)
	if err != nil {
		return false, err
	}
	err = r.repo.Storer.HasEncodedObject(h)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return false, nil
	}
	return false, err
}

// Kind 返回对象类型
func (r *Repo) Kind(id types.ObjectID) (core.ObjectKind, error) {
	eo, err := r.encoded(id)
	if err != nil {
		return "", err
	}
	return toKind(eo.Type())
}

// Write 写入原始内容，返回对象库自己算出的 ID
// 调用方负责比较它与期望的 ID
func (r *Repo) Write(kind core.ObjectKind, raw []byte) (types.ObjectID, error) {
	t, err := toObjectType(kind)
	if err != nil {
		return "", err
	}

	eo := r.repo.Storer.NewEncodedObject()
	eo.SetType(t)
	eo.SetSize(int64(len(raw)))

	w, err := eo.Writer()
	if err != nil {
		return "", fmt.Errorf("failed to open object writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	h, err := r.repo.Storer.SetEncodedObject(eo)
	if err != nil {
		return "", fmt.Errorf("failed to store object: %w", err)
	}
	return types.ObjectID(h.String()), nil
}

// ResolveRef 解析 ref，优先剥到附注标签，否则剥到 commit
func (r *Repo) ResolveRef(name string) (types.ObjectID, core.ObjectKind, error) {
	ref, err := r.repo.Reference(plumbing.ReferenceName(name), true)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}

	id := types.ObjectID(ref.Hash().String())
	eo, err := r.encoded(id)
	if err != nil {
		return "", "", err
	}

	switch eo.Type() {
	case plumbing.TagObject:
		// 附注标签本身就是要推送的对象
		return id, core.KindTag, nil
	case plumbing.CommitObject:
		return id, core.KindCommit, nil
	default:
		return "", "", fmt.Errorf("%s (%s): %w", name, eo.Type(), ErrUnpeelable)
	}
}

// UpdateRef 让 ref 直接指向对象
func (r *Repo) UpdateRef(name string, id types.ObjectID) error {
	h, err := toHash(id)
	if err != nil {
		return err
	}
	ref := plumbing.NewHashReference(plumbing.ReferenceName(name), h)
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("failed to update %s: %w", name, err)
	}
	return nil
}

// Refs 返回全部直接指向对象的 ref (符号 ref 被跳过)
func (r *Repo) Refs() (map[string]types.ObjectID, error) {
	iter, err := r.repo.References()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	refs := make(map[string]types.ObjectID)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		refs[ref.Name().String()] = types.ObjectID(ref.Hash().String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}
