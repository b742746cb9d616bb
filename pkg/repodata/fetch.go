package repodata

import (
	"context"
	"fmt"

	"gitledger/pkg/core"
	"gitledger/pkg/types"
)

// LocalPresence 探测本地对象库是否已有某个对象 (只读头部)
type LocalPresence interface {
	Has(id types.ObjectID) (bool, error)
}

// MetadataSource 从远端读取对象 (blob store + 账本记录)
type MetadataSource interface {
	Object(ctx context.Context, id types.ObjectID) (*core.GitObject, error)
}

type FetchOptions struct {
	// StopAtSubmodule 为 true 时，遇到第一个子模块 tip 就结束整个遍历
	// 默认只跳过该分支，继续处理剩余的工作项
	StopAtSubmodule bool
}

// FetchPlan 是一次抓取需要下载的对象集合
// 遍历时已经下载过的对象保存在计划里，物化时不再重复下载
type FetchPlan struct {
	// IDs 按发现顺序排列
	IDs []types.ObjectID
	// Submodules 是被跳过的子模块 tip
	Submodules []types.ObjectID
	// Truncated 表示遍历因子模块提前结束
	Truncated bool

	objects map[types.ObjectID]*core.GitObject
}

func (p *FetchPlan) Len() int { return len(p.IDs) }

func (p *FetchPlan) Object(id types.ObjectID) (*core.GitObject, bool) {
	obj, ok := p.objects[id]
	return obj, ok
}

// Ordered 返回依赖在前的对象序列
// 对计划内的引用图做后序遍历：每个对象都排在它引用的计划内对象之后
func (p *FetchPlan) Ordered() []*core.GitObject {
	type frame struct {
		obj   *core.GitObject
		links []types.ObjectID
		next  int
	}

	out := make([]*core.GitObject, 0, len(p.IDs))
	visited := make(map[types.ObjectID]struct{}, len(p.IDs))
	for _, root := range p.IDs {
		if _, ok := visited[root]; ok {
			continue
		}
		visited[root] = struct{}{}
		stack := []frame{{obj: p.objects[root], links: p.objects[root].Meta.Links()}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.links) {
				link := top.links[top.next]
				top.next++
				obj, ok := p.objects[link]
				if !ok {
					continue
				}
				if _, seen := visited[link]; seen {
					continue
				}
				visited[link] = struct{}{}
				stack = append(stack, frame{obj: obj, links: obj.Meta.Links()})
				continue
			}
			out = append(out, top.obj)
			stack = stack[:len(stack)-1]
		}
	}
	return out
}

type fetchItem struct {
	id        types.ObjectID
	submodule bool
}

// EnumerateForFetch 从 target 出发遍历远端元数据图，计算本地缺失的最小对象集合
// 本地已有的对象不再向下遍历；它们的闭包由本地对象库保证
func (rd *RepoData) EnumerateForFetch(
	ctx context.Context,
	target types.ObjectID,
	local LocalPresence,
	source MetadataSource,
	opts FetchOptions,
) (*FetchPlan, error) {
	plan := &FetchPlan{objects: make(map[types.ObjectID]*core.GitObject)}
	skipped := make(map[types.ObjectID]struct{})

	stack := []fetchItem{{id: target}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// 1. 本地已有 / 本次已安排
		present, err := local.Has(item.id)
		if err != nil {
			return nil, fmt.Errorf("failed to probe local object %s: %w", item.id, err)
		}
		if present {
			continue
		}
		if _, ok := plan.objects[item.id]; ok {
			continue
		}
		if _, ok := skipped[item.id]; ok {
			continue
		}

		// 2. 子模块 tip 由 git 自己获取
		submodule := item.submodule
		if !submodule {
			ref, ok := rd.Lookup(item.id)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrObjectNotIndexed, item.id)
			}
			submodule = ref.Submodule
		}
		if submodule {
			skipped[item.id] = struct{}{}
			plan.Submodules = append(plan.Submodules, item.id)
			if opts.StopAtSubmodule {
				plan.Truncated = len(stack) > 0
				return plan, nil
			}
			continue
		}

		// 3. 下载元数据，继续遍历它引用的对象
		obj, err := source.Object(ctx, item.id)
		if err != nil {
			return nil, err
		}

		plan.IDs = append(plan.IDs, item.id)
		plan.objects[item.id] = obj

		if tree, ok := obj.Meta.(core.TreeMeta); ok {
			for _, entry := range tree.Entries {
				stack = append(stack, fetchItem{id: entry, submodule: tree.IsSubmodule(entry)})
			}
			continue
		}
		for _, link := range obj.Meta.Links() {
			stack = append(stack, fetchItem{id: link})
		}
	}

	return plan, nil
}
