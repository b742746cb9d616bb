// Package ignore 决定哪些 ref 不对 git 公开
// 规则使用 gitignore 语法，匹配对象是完整的 ref 名 (例如 "refs/heads/wip/x")
package ignore

import (
	"os"
	"path/filepath"

	"gitledger/pkg/types"

	gitignore "github.com/sabhiram/go-gitignore"
)

// HiddenRefsFile 是 $GIT_DIR 下可选的规则文件
const HiddenRefsFile = "gitledger/hidden-refs"

// Matcher 封装了隐藏逻辑
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化匹配器
// gitDir: 本地仓库的 git 目录，为空时不读取规则文件
// patterns: 来自配置的额外规则
func NewMatcher(gitDir string, patterns ...string) (*Matcher, error) {
	// 1. 默认规则：别的远端的跟踪分支和 stash 不属于这个仓库
	rules := append([]string{
		"refs/remotes",
		"refs/stash",
	}, patterns...)

	// 2. 合并用户的规则文件
	var (
		ignorer *gitignore.GitIgnore
		err     error
	)
	rulesFile := filepath.Join(gitDir, HiddenRefsFile)
	if _, statErr := os.Stat(rulesFile); gitDir != "" && statErr == nil {
		ignorer, err = gitignore.CompileIgnoreFileAndLines(rulesFile, rules...)
	} else {
		ignorer = gitignore.CompileIgnoreLines(rules...)
	}
	if err != nil {
		return nil, err
	}

	return &Matcher{ignorer: ignorer}, nil
}

// Matches 返回 true 表示 ref 应该隐藏
func (m *Matcher) Matches(ref string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(ref)
}

// Filter 返回去掉隐藏 ref 的副本
func (m *Matcher) Filter(refs map[string]types.ObjectID) map[string]types.ObjectID {
	out := make(map[string]types.ObjectID, len(refs))
	for name, id := range refs {
		if !m.Matches(name) {
			out[name] = id
		}
	}
	return out
}
