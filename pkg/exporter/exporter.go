// Package exporter 把 blob store 中的对象、索引和账本记录打印成人类可读的形式
package exporter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"gitledger/pkg/core"
	"gitledger/pkg/ledger"
	"gitledger/pkg/repodata"
	"gitledger/pkg/storage"
	"gitledger/pkg/types"

	"github.com/dustin/go-humanize"
)

type Exporter struct {
	store storage.Store
}

func NewExporter(store storage.Store) *Exporter {
	return &Exporter{store: store}
}

// ExportRaw 把地址处 GitObject 的原始 git 内容写入 writer
func (e *Exporter) ExportRaw(ctx context.Context, hash types.Hash, writer io.Writer) error {
	data, err := storage.ReadAll(ctx, e.store, hash)
	if err != nil {
		return err
	}
	obj, err := core.Decode(data)
	if err != nil {
		return fmt.Errorf("%s is not a git object: %w", hash, err)
	}
	_, err = writer.Write(obj.Raw)
	return err
}

// PrintObject 探测地址处的数据类型并打印
func (e *Exporter) PrintObject(ctx context.Context, hash types.Hash, writer io.Writer) error {
	// 1. 读取原始字节
	data, err := storage.ReadAll(ctx, e.store, hash)
	if err != nil {
		return err
	}

	// 2. 先当作 GitObject，再当作索引快照
	if obj, err := core.Decode(data); err == nil {
		return PrintGitObject(obj, writer)
	}
	if rd, err := repodata.Decode(data); err == nil {
		return PrintIndex(rd, writer)
	}

	fmt.Fprintf(writer, "Type: Unknown\nSize: %s\n", humanize.IBytes(uint64(len(data))))
	return nil
}

// PrintGitObject 打印对象的元数据；blob 和 commit 的内容是文本时一并打印
func PrintGitObject(obj *core.GitObject, w io.Writer) error {
	fmt.Fprintf(w, "Type:    %s\n", obj.Kind())
	fmt.Fprintf(w, "ID:      %s\n", obj.ID)
	fmt.Fprintf(w, "Size:    %s\n", humanize.IBytes(uint64(obj.Size())))

	switch m := obj.Meta.(type) {
	case core.CommitMeta:
		fmt.Fprintf(w, "Tree:    %s\n", m.Tree)
		for _, p := range m.Parents {
			fmt.Fprintf(w, "Parent:  %s\n", p)
		}
	case core.TagMeta:
		fmt.Fprintf(w, "Target:  %s\n", m.Target)
	case core.TreeMeta:
		fmt.Fprintf(w, "\n")
		// 使用 tabwriter 对齐输出 (像 git ls-tree)
		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		for _, id := range m.Entries {
			kind := "object"
			if m.IsSubmodule(id) {
				kind = "submodule"
			}
			fmt.Fprintf(tw, "%s\t%s\n", kind, id)
		}
		return tw.Flush()
	}

	if obj.Kind() != core.KindTree && utf8.Valid(obj.Raw) {
		fmt.Fprintf(w, "\n%s", obj.Raw)
		if !strings.HasSuffix(string(obj.Raw), "\n") {
			fmt.Fprintln(w)
		}
	}
	return nil
}

// PrintIndex 打印索引快照：ref 列表和对象统计
func PrintIndex(rd *repodata.RepoData, w io.Writer) error {
	var submodules int
	for _, ref := range rd.Objects() {
		if ref.Submodule {
			submodules++
		}
	}

	fmt.Fprintf(w, "Type:       RepoData\n")
	fmt.Fprintf(w, "Objects:    %d\n", rd.Len())
	fmt.Fprintf(w, "Submodules: %d\n", submodules)
	fmt.Fprintf(w, "\n")

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, name := range rd.RefNames() {
		id, _ := rd.Ref(name)
		fmt.Fprintf(tw, "%s\t%s\n", id, name)
	}
	return tw.Flush()
}

// PrintRecords 打印账本记录
func PrintRecords(records []ledger.Record, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "RECORD\tKEY\tCONTENT\tSTATE\n")
	for _, r := range records {
		state := "staged"
		if r.Current {
			state = "current"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Key, r.ContentRef, state)
	}
	return tw.Flush()
}
