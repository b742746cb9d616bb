// Package helper 实现 git remote helper 的行协议
// git 通过 stdin 发送命令，结果写回 stdout；进度和日志只写 stderr
package helper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gitledger/pkg/engine"
	"gitledger/pkg/ignore"
	"gitledger/pkg/remote"
	"gitledger/pkg/repodata"
	"gitledger/pkg/types"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Remote 在 engine.Remote 之上增加索引的加载和发布
type Remote interface {
	engine.Remote

	LoadIndex(ctx context.Context) (*repodata.RepoData, *types.RecordID, error)
	Publish(ctx context.Context, rd *repodata.RepoData) (*remote.PublishResult, error)
	Finalize(ctx context.Context, res *remote.PublishResult, expected *types.RecordID) error
}

type Options struct {
	Engine engine.Options
	Hidden *ignore.Matcher
}

type Helper struct {
	local  engine.LocalStore
	remote Remote
	opts   Options
	logger *zap.Logger

	in     *bufio.Reader
	out    *bufio.Writer
	stderr io.Writer

	verbosity int

	// 会话内的索引；发布失败后置空，下次使用时重新加载
	index    *repodata.RepoData
	expected *types.RecordID
	engine   *engine.Engine
}

func New(local engine.LocalStore, rem Remote, opts Options, logger *zap.Logger, stdin io.Reader, stdout, stderr io.Writer) *Helper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Helper{
		local:     local,
		remote:    rem,
		opts:      opts,
		logger:    logger.Named("helper"),
		in:        bufio.NewReader(stdin),
		out:       bufio.NewWriter(stdout),
		stderr:    stderr,
		verbosity: 1,
	}
}

// ParseURL 从远端 URL 中取出容器编号
// 接受 "ledger://7"、"ledger::7" 和 git 去掉前缀后传来的 "7"
func ParseURL(url string) (types.ContainerID, error) {
	s := url
	for _, prefix := range []string{"ledger://", "ledger::"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSuffix(s, "/")
	id, err := types.ParseContainerID(s)
	if err != nil {
		return 0, fmt.Errorf("invalid ledger url %q: %w", url, err)
	}
	return id, nil
}

func (h *Helper) readLine() (string, error) {
	line, err := h.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (h *Helper) reply(lines ...string) error {
	for _, l := range lines {
		if _, err := h.out.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return h.out.Flush()
}

// Run 处理命令直到 git 关闭 stdin 或发送空行
func (h *Helper) Run(ctx context.Context) error {
	for {
		line, err := h.readLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}

		h.logger.Debug("command", zap.String("line", line))
		cmd, args, _ := strings.Cut(line, " ")

		switch cmd {
		case "capabilities":
			err = h.reply("push", "fetch", "option", "")
		case "list":
			err = h.list(ctx)
		case "option":
			err = h.option(args)
		case "push":
			err = h.pushBatch(ctx, args)
		case "fetch":
			err = h.fetchBatch(ctx, args)
		default:
			err = fmt.Errorf("unsupported command %q", cmd)
		}
		if err != nil {
			return err
		}
	}
}

// session 加载 (或复用) 本次会话的索引
func (h *Helper) session(ctx context.Context) (*engine.Engine, error) {
	if h.engine != nil {
		return h.engine, nil
	}
	rd, expected, err := h.remote.LoadIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	opts := h.opts.Engine
	opts.Progress = h.progress
	h.index, h.expected = rd, expected
	h.engine = engine.New(h.local, h.remote, rd, opts, h.logger)
	return h.engine, nil
}

func (h *Helper) reset() {
	h.index, h.expected, h.engine = nil, nil, nil
}

func (h *Helper) list(ctx context.Context) error {
	if _, err := h.session(ctx); err != nil {
		return err
	}

	refs := h.opts.Hidden.Filter(h.index.Refs())
	var lines []string
	for _, name := range h.index.RefNames() {
		if id, ok := refs[name]; ok {
			lines = append(lines, fmt.Sprintf("%s %s", id, name))
		}
	}
	for _, head := range []string{"refs/heads/main", "refs/heads/master"} {
		if _, ok := refs[head]; ok {
			lines = append(lines, "@"+head+" HEAD")
			break
		}
	}
	return h.reply(append(lines, "")...)
}

func (h *Helper) option(args string) error {
	name, value, _ := strings.Cut(args, " ")
	if name != "verbosity" {
		return h.reply("unsupported")
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return h.reply("error invalid verbosity " + value)
	}
	h.verbosity = v
	return h.reply("ok")
}

// readBatch 读取同类命令直到空行
func (h *Helper) readBatch(cmd, first string) ([]string, error) {
	batch := []string{first}
	for {
		line, err := h.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if line == "" {
			return batch, nil
		}
		name, args, _ := strings.Cut(line, " ")
		if name != cmd {
			return nil, fmt.Errorf("unexpected %q in %s batch", name, cmd)
		}
		batch = append(batch, args)
	}
}

type pushResult struct {
	dst string
	err error
}

func (h *Helper) pushBatch(ctx context.Context, first string) error {
	specs, err := h.readBatch("push", first)
	if err != nil {
		return err
	}
	eng, err := h.session(ctx)
	if err != nil {
		return err
	}

	// 1. 逐个 ref 推送
	results := make([]pushResult, 0, len(specs))
	mutated := false
	for _, spec := range specs {
		force := strings.HasPrefix(spec, "+")
		src, dst, ok := strings.Cut(strings.TrimPrefix(spec, "+"), ":")
		if !ok {
			return fmt.Errorf("malformed refspec %q", spec)
		}
		if h.opts.Hidden.Matches(dst) {
			results = append(results, pushResult{dst: dst, err: errors.New("hidden ref")})
			continue
		}

		records, err := eng.PushRef(ctx, src, dst, force)
		if err != nil {
			h.logger.Warn("push failed", zap.String("ref", dst), zap.Error(err))
		} else {
			mutated = true
			h.logger.Debug("ref pushed", zap.String("ref", dst), zap.Int("records", len(records)))
		}
		results = append(results, pushResult{dst: dst, err: err})
	}

	// 2. 整批只发布一次索引
	if mutated {
		if err := h.publish(ctx); err != nil {
			h.logger.Error("index publish failed", zap.Error(err))
			for i := range results {
				if results[i].err == nil {
					results[i].err = err
				}
			}
		}
	}

	lines := make([]string, 0, len(results)+1)
	for _, r := range results {
		if r.err == nil {
			lines = append(lines, "ok "+r.dst)
		} else {
			lines = append(lines, fmt.Sprintf("error %s %s", r.dst, reason(r.err)))
		}
	}
	return h.reply(append(lines, "")...)
}

func (h *Helper) publish(ctx context.Context) error {
	res, err := h.remote.Publish(ctx, h.index)
	if err == nil {
		err = h.remote.Finalize(ctx, res, h.expected)
	}
	if err != nil {
		h.reset()
		return err
	}

	// 之后的批次以自己的新记录为基准
	id := res.New
	h.expected = &id
	if h.verbosity > 0 {
		fmt.Fprintf(h.stderr, "Published index as record %s\n", res.New)
	}
	return nil
}

// reason 把错误压成 git 能识别的单行原因
func reason(err error) string {
	if errors.Is(err, repodata.ErrPullNeeded) {
		return "fetch first"
	}
	return strings.ReplaceAll(err.Error(), "\n", " ")
}

func (h *Helper) fetchBatch(ctx context.Context, first string) error {
	batch, err := h.readBatch("fetch", first)
	if err != nil {
		return err
	}
	eng, err := h.session(ctx)
	if err != nil {
		return err
	}

	seen := make(map[types.ObjectID]struct{})
	for _, args := range batch {
		sha, name, _ := strings.Cut(args, " ")
		id := types.ObjectID(sha)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		if _, err := eng.Fetch(ctx, id); err != nil {
			return fmt.Errorf("failed to fetch %s for %s: %w", id, name, err)
		}
	}
	return h.reply("")
}

func (h *Helper) progress(p engine.Progress) {
	if h.verbosity < 1 || p.Total == 0 {
		return
	}
	fmt.Fprintf(h.stderr, "\r%s objects: %d/%d (%s)", p.Op, p.Done, p.Total, humanize.IBytes(uint64(p.Bytes)))
	if p.Done == p.Total {
		fmt.Fprintln(h.stderr, ", done.")
	}
}
