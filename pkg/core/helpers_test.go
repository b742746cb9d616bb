package core

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"gitledger/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// mockID 生成一个合法的 SHA-1 对象 ID (40 字符)
func mockID(input string) types.ObjectID {
	sum := sha1.Sum([]byte(input))
	return types.ObjectID(hex.EncodeToString(sum[:]))
}

// mustNewObject 创建 GitObject，如果失败直接终止测试
func mustNewObject(t *testing.T, id types.ObjectID, raw []byte, meta Metadata, msgAndArgs ...any) *GitObject {
	t.Helper()
	obj, err := NewGitObject(id, raw, meta)
	require.NoError(t, err, msgAndArgs...)
	return obj
}

func mustEncode(t *testing.T, obj *GitObject) []byte {
	t.Helper()
	data, err := Encode(obj)
	require.NoError(t, err)
	return data
}
