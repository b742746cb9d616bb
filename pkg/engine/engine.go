// Package engine 编排推送和抓取
// 推送：本地对象图 -> 远端 (上传 + 铸造 + 更新索引)
// 抓取：远端 -> 本地对象库 (下载 + 校验 + 写入)
package engine

import (
	"context"
	"fmt"
	"strings"

	"gitledger/pkg/core"
	"gitledger/pkg/remote"
	"gitledger/pkg/repodata"
	"gitledger/pkg/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LocalStore 是本地 git 对象库
type LocalStore interface {
	repodata.ObjectSource
	repodata.LocalPresence

	Kind(id types.ObjectID) (core.ObjectKind, error)
	Write(kind core.ObjectKind, raw []byte) (types.ObjectID, error)
	ResolveRef(name string) (types.ObjectID, core.ObjectKind, error)
	UpdateRef(name string, id types.ObjectID) error
}

// Remote 是 blob store + 账本
type Remote interface {
	repodata.MetadataSource

	Mint(ctx context.Context, obj *core.GitObject) (remote.Minted, error)
}

// Progress 描述上传或下载的进度
type Progress struct {
	Op    string
	Done  int
	Total int
	Bytes int64
}

type Options struct {
	// MintConcurrency 是同时进行的铸造数，<= 1 表示顺序执行
	MintConcurrency int
	// StopAtSubmodule 复现旧版行为：遇到子模块 tip 就结束抓取遍历
	StopAtSubmodule bool
	// Progress 在每个对象完成后调用 (在收集协程里，串行)
	Progress func(Progress)
}

type Engine struct {
	local  LocalStore
	remote Remote
	index  *repodata.RepoData
	opts   Options
	logger *zap.Logger
}

func New(local LocalStore, rem Remote, index *repodata.RepoData, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MintConcurrency < 1 {
		opts.MintConcurrency = 1
	}
	return &Engine{
		local:  local,
		remote: rem,
		index:  index,
		opts:   opts,
		logger: logger.Named("engine"),
	}
}

// Index 返回引擎修改的索引
func (e *Engine) Index() *repodata.RepoData { return e.index }

func (e *Engine) fetchOptions() repodata.FetchOptions {
	return repodata.FetchOptions{StopAtSubmodule: e.opts.StopAtSubmodule}
}

func (e *Engine) progress(p Progress) {
	if e.opts.Progress != nil {
		e.opts.Progress(p)
	}
}

// PushRef 把本地 src 推送到远端 dst，返回本次铸造 (或沿用) 的记录
// src 为空表示删除 dst
func (e *Engine) PushRef(ctx context.Context, src, dst string, force bool) ([]types.RecordID, error) {
	// 1. 删除
	if src == "" {
		if !e.index.DeleteRef(dst) {
			e.logger.Debug("ref not on remote, nothing to delete", zap.String("ref", dst))
		}
		return nil, nil
	}

	// 2. 解析本地 ref (优先附注标签)
	id, kind, err := e.local.ResolveRef(src)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", src, err)
	}
	log := e.logger.With(zap.String("src", src), zap.String("dst", dst), zap.String("id", id.Short()))

	// 3. 非强制推送时，远端 tip 的闭包必须已经在本地
	if current, ok := e.index.Ref(dst); ok && !force && current != id {
		plan, err := e.index.EnumerateForFetch(ctx, current, e.local, e.remote, e.fetchOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to check %s against remote tip %s: %w", dst, current.Short(), err)
		}
		if plan.Len() > 0 {
			return nil, fmt.Errorf("%w: %s is missing %d remote objects", repodata.ErrPullNeeded, dst, plan.Len())
		}
	}

	// 4. 计算远端缺失的对象
	plan, err := e.index.EnumerateForPush(id, e.local)
	if err != nil {
		return nil, err
	}
	log.Info("pushing",
		zap.String("kind", string(kind)),
		zap.Int("objects", plan.Len()),
		zap.Int("submodules", len(plan.Submodules)),
	)

	// 5. 上传并登记
	records, err := e.mintAll(ctx, plan)
	if err != nil {
		return nil, err
	}
	for _, sub := range plan.Submodules {
		if _, err := e.index.AppendSubmoduleTip(sub); err != nil {
			return nil, err
		}
	}

	// 6. 更新远端 ref
	if err := e.index.SetRef(dst, id); err != nil {
		return nil, err
	}
	return records, nil
}

// mintAll 用有界协程池铸造计划里的对象
// 只有收集协程写索引；任何一个失败都会取消其余任务
func (e *Engine) mintAll(ctx context.Context, plan *repodata.PushPlan) ([]types.RecordID, error) {
	total := plan.Len()
	if total == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MintConcurrency)

	results := make(chan remote.Minted)
	collected := make(chan error, 1)
	records := make([]types.RecordID, 0, total)

	go func() {
		var (
			firstErr error
			bytes    int64
		)
		for m := range results {
			if firstErr != nil {
				continue
			}
			if _, err := e.index.Append(m.ID); err != nil {
				firstErr = err
				continue
			}
			records = append(records, m.Record)
			bytes += m.Size
			e.progress(Progress{Op: "mint", Done: len(records), Total: total, Bytes: bytes})
		}
		collected <- firstErr
	}()

	for _, obj := range plan.Objects {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := e.remote.Mint(gctx, obj)
			if err != nil {
				return fmt.Errorf("failed to mint %s %s: %w", obj.Kind(), obj.ID, err)
			}
			results <- m
			return nil
		})
	}

	err := g.Wait()
	close(results)
	if cerr := <-collected; err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FetchRef 抓取 id 的闭包并更新本地 ref
// 标签 (附注或轻量) 的 ref 交给 git 处理
func (e *Engine) FetchRef(ctx context.Context, id types.ObjectID, name string) error {
	if _, err := e.Fetch(ctx, id); err != nil {
		return err
	}

	kind, err := e.local.Kind(id)
	if err != nil {
		return fmt.Errorf("failed to inspect fetched tip %s: %w", id, err)
	}
	switch {
	case kind == core.KindCommit && strings.HasPrefix(name, "refs/tags/"):
		e.logger.Debug("not setting ref for lightweight tag", zap.String("ref", name))
	case kind == core.KindCommit:
		if err := e.local.UpdateRef(name, id); err != nil {
			return fmt.Errorf("failed to update %s: %w", name, err)
		}
	case kind == core.KindTag:
		e.logger.Debug("not setting ref for tag", zap.String("ref", name))
	default:
		return fmt.Errorf("fetched tip %s of %s is a %s", id, name, kind)
	}
	return nil
}

// Fetch 把 id 的闭包写入本地对象库，不修改任何 ref
func (e *Engine) Fetch(ctx context.Context, id types.ObjectID) (*repodata.FetchPlan, error) {
	// 1. 枚举 (同时下载了元数据)
	plan, err := e.index.EnumerateForFetch(ctx, id, e.local, e.remote, e.fetchOptions())
	if err != nil {
		return nil, err
	}
	if plan.Truncated {
		e.logger.Warn("fetch stopped at submodule", zap.String("tip", id.Short()))
	}

	// 2. 物化，依赖在前
	var bytes int64
	for i, obj := range plan.Ordered() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.materialize(obj); err != nil {
			return nil, err
		}
		bytes += obj.Size()
		e.progress(Progress{Op: "fetch", Done: i + 1, Total: plan.Len(), Bytes: bytes})
	}
	return plan, nil
}

func (e *Engine) materialize(obj *core.GitObject) error {
	present, err := e.local.Has(obj.ID)
	if err != nil {
		return err
	}
	if present {
		e.logger.Debug("object already present locally", zap.String("id", obj.ID.Short()))
		return nil
	}

	written, err := e.local.Write(obj.Kind(), obj.Raw)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", obj.ID, err)
	}
	if written != obj.ID {
		return fmt.Errorf("%w: fetched %s but local write hashes to %s", remote.ErrIntegrity, obj.ID, written)
	}
	return nil
}
