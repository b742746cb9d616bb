package repodata

import (
	"fmt"
	"maps"
	"slices"

	"gitledger/pkg/core"
	"gitledger/pkg/types"
)

// RepoData 是远端可见的仓库索引：ref 表和已存入 blob store 的对象列表
// 对象列表只追加不修改；一个实例在一次操作内由调用方独占，不做内部加锁
type RepoData struct {
	refs    map[string]types.ObjectID
	objects []ObjectRef

	// lookup: id -> objects 中首次出现的下标 (不序列化)
	lookup map[types.ObjectID]int
}

type repoDataWire struct {
	Refs    map[string]string `cbor:"refs"`
	Objects []ObjectRef       `cbor:"objects"`
}

func New() *RepoData {
	return &RepoData{
		refs:   make(map[string]types.ObjectID),
		lookup: make(map[types.ObjectID]int),
	}
}

// Decode 从已发布的快照字节还原索引
func Decode(data []byte) (*RepoData, error) {
	var w repoDataWire
	if err := core.DecodeObject(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode repo data: %w", err)
	}

	rd := New()
	for name, target := range w.Refs {
		id := types.ObjectID(target)
		if !id.IsValid() {
			return nil, fmt.Errorf("ref %s: %w: %q", name, ErrInvalidObjectID, target)
		}
		rd.refs[name] = id
	}

	rd.objects = make([]ObjectRef, 0, len(w.Objects))
	for _, ref := range w.Objects {
		rd.push(ref)
	}
	return rd, nil
}

// Encode 生成规范编码；同一份逻辑内容永远得到同样的字节
func (rd *RepoData) Encode() ([]byte, error) {
	w := repoDataWire{
		Refs:    make(map[string]string, len(rd.refs)),
		Objects: rd.objects,
	}
	for name, id := range rd.refs {
		w.Refs[name] = string(id)
	}
	if w.Objects == nil {
		w.Objects = []ObjectRef{}
	}

	data, err := core.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode repo data: %w", err)
	}
	return data, nil
}

// Refs 返回 ref 表的副本
func (rd *RepoData) Refs() map[string]types.ObjectID {
	return maps.Clone(rd.refs)
}

// RefNames 返回排序后的 ref 名称
func (rd *RepoData) RefNames() []string {
	return slices.Sorted(maps.Keys(rd.refs))
}

func (rd *RepoData) Ref(name string) (types.ObjectID, bool) {
	id, ok := rd.refs[name]
	return id, ok
}

func (rd *RepoData) SetRef(name string, id types.ObjectID) error {
	if !id.IsValid() {
		return fmt.Errorf("ref %s: %w: %q", name, ErrInvalidObjectID, id)
	}
	rd.refs[name] = id
	return nil
}

// DeleteRef 删除一个 ref，返回它是否存在；删除不存在的 ref 不是错误
func (rd *RepoData) DeleteRef(name string) bool {
	if _, ok := rd.refs[name]; !ok {
		return false
	}
	delete(rd.refs, name)
	return true
}

// Objects 返回对象列表的副本
func (rd *RepoData) Objects() []ObjectRef {
	return slices.Clone(rd.objects)
}

func (rd *RepoData) Len() int { return len(rd.objects) }

// Contains 判断某个 ID 是否已登记 (普通对象或子模块 tip)
func (rd *RepoData) Contains(id types.ObjectID) bool {
	_, ok := rd.lookup[id]
	return ok
}

func (rd *RepoData) Lookup(id types.ObjectID) (ObjectRef, bool) {
	i, ok := rd.lookup[id]
	if !ok {
		return ObjectRef{}, false
	}
	return rd.objects[i], true
}

// Append 登记一个已确认存在于远端的对象
// 已登记的 ID 不会重复追加，此时返回 false
func (rd *RepoData) Append(id types.ObjectID) (bool, error) {
	return rd.appendRef(ObjectRef{ID: id})
}

// AppendSubmoduleTip 登记一个子模块 tip；它的内容由 git 自己负责获取
func (rd *RepoData) AppendSubmoduleTip(id types.ObjectID) (bool, error) {
	return rd.appendRef(ObjectRef{ID: id, Submodule: true})
}

func (rd *RepoData) appendRef(ref ObjectRef) (bool, error) {
	if !ref.ID.IsValid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidObjectID, ref.ID)
	}
	if rd.Contains(ref.ID) {
		return false, nil
	}
	rd.push(ref)
	return true, nil
}

func (rd *RepoData) push(ref ObjectRef) {
	if !ref.ID.IsZero() {
		if _, seen := rd.lookup[ref.ID]; !seen {
			rd.lookup[ref.ID] = len(rd.objects)
		}
	}
	rd.objects = append(rd.objects, ref)
}
