package repodata

import (
	"fmt"
	"slices"

	"gitledger/pkg/core"
	"gitledger/pkg/types"
)

// ObjectSource 读取本地对象图
type ObjectSource interface {
	Object(id types.ObjectID) (*core.GitObject, error)
}

// PushPlan 是一次推送需要上传的对象闭包
type PushPlan struct {
	// Objects 按发现顺序排列；它是 DAG 闭包，上传顺序不受约束
	Objects []*core.GitObject
	// Submodules 是遇到的子模块 tip，不上传也不遍历
	Submodules []types.ObjectID
}

// IDs 返回排序后的待上传 ID
func (p *PushPlan) IDs() []types.ObjectID {
	ids := make([]types.ObjectID, len(p.Objects))
	for i, obj := range p.Objects {
		ids[i] = obj.ID
	}
	slices.Sort(ids)
	return ids
}

func (p *PushPlan) Len() int { return len(p.Objects) }

// Size 返回待上传对象的原始字节总数
func (p *PushPlan) Size() int64 {
	var n int64
	for _, obj := range p.Objects {
		n += obj.Size()
	}
	return n
}

// EnumerateForPush 从 root 出发遍历本地对象图，计算远端缺失的最小对象集合
// 已登记在索引中的对象视为远端已有，不再向下遍历
func (rd *RepoData) EnumerateForPush(root types.ObjectID, source ObjectSource) (*PushPlan, error) {
	plan := &PushPlan{}
	scheduled := make(map[types.ObjectID]struct{})
	submodules := make(map[types.ObjectID]struct{})

	stack := []types.ObjectID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// 1. 远端已有 / 本次已安排
		if rd.Contains(id) {
			continue
		}
		if _, ok := scheduled[id]; ok {
			continue
		}

		// 2. 读取本地对象
		obj, err := source.Object(id)
		if err != nil {
			return nil, err
		}

		// 3. 按类型决定下一步
		switch meta := obj.Meta.(type) {
		case core.CommitMeta:
			stack = append(stack, meta.Tree)
			stack = append(stack, meta.Parents...)
		case core.TreeMeta:
			for _, entry := range meta.Entries {
				if meta.IsSubmodule(entry) {
					// 子模块 tip：只记录，不下钻
					if _, ok := submodules[entry]; !ok {
						submodules[entry] = struct{}{}
						plan.Submodules = append(plan.Submodules, entry)
					}
					continue
				}
				stack = append(stack, entry)
			}
		case core.TagMeta:
			stack = append(stack, meta.Target)
		case core.BlobMeta:
		default:
			return nil, fmt.Errorf("object %s: %w: %T", id, core.ErrUnsupportedKind, obj.Meta)
		}

		scheduled[id] = struct{}{}
		plan.Objects = append(plan.Objects, obj)
	}

	return plan, nil
}
