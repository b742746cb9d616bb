package disk

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"gitledger/pkg/core"
	"gitledger/pkg/storage"
	"gitledger/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 模拟一个简单的 Addressable 实现，用于测试
type mockObject struct {
	id   types.Hash
	data []byte
}

func (m mockObject) ID() types.Hash { return m.id }
func (m mockObject) Bytes() []byte  { return m.data }

func TestDiskAdapter(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()
	obj := core.NewContent([]byte("hello world"))

	// 2. 测试 Put
	require.NoError(t, store.Put(ctx, obj))

	// 路径应该是 tmpDir/aa/bbcc...
	h := string(obj.ID())
	_, err = os.Stat(filepath.Join(tmpDir, h[:2], h[2:]))
	assert.NoError(t, err, "文件应该存在于 Sharding 目录中")

	// 重复写入是 no-op
	require.NoError(t, store.Put(ctx, obj))

	// 3. 测试 Has
	exists, err := store.Has(ctx, obj.ID())
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Has(ctx, "ffffffff")
	require.NoError(t, err)
	assert.False(t, exists)

	// 4. 测试 Get (解压后与原文一致)
	content, err := storage.ReadAll(ctx, store, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), content)
}

func TestDiskAdapter_CompressedAtRest(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	data := bytes.Repeat([]byte("tree 0123456789\n"), 512)
	obj := core.NewContent(data)
	require.NoError(t, store.Put(context.Background(), obj))

	h := string(obj.ID())
	info, err := os.Stat(filepath.Join(tmpDir, h[:2], h[2:]))
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(data)))

	got, err := storage.ReadAll(context.Background(), store, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDiskAdapter_GetMissing(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), core.CalculateBlobHash([]byte("nope")))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDiskAdapter_RejectsInvalidAddress(t *testing.T) {
	store, err := NewAdapter(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), mockObject{id: "../escape", data: []byte("x")})
	assert.Error(t, err)
}

func TestDiskAdapter_ExpandHash(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)
	ctx := context.Background()

	// 准备数据: 构造两个 Hash 前缀相似的对象
	objA := mockObject{id: "1111aaaa00000000000000000000000000000000000000000000000000000000", data: []byte("A")}
	objB := mockObject{id: "1111bbbb00000000000000000000000000000000000000000000000000000000", data: []byte("B")}
	objC := mockObject{id: "2222cccc00000000000000000000000000000000000000000000000000000000", data: []byte("C")}

	require.NoError(t, store.Put(ctx, objA))
	require.NoError(t, store.Put(ctx, objB))
	require.NoError(t, store.Put(ctx, objC))

	tests := []struct {
		name     string
		input    string
		wantHash types.Hash
		wantErr  error
	}{
		{"Exact match", string(objC.id), objC.id, nil},
		{"Unique prefix (4 chars)", "2222", objC.id, nil},
		{"Unique prefix (long)", "2222cccc", objC.id, nil},
		{"Ambiguous prefix", "1111", "", storage.ErrAmbiguousHash},
		{"Not found", "ffff", "", storage.ErrNotFound},
		{"Not found in shard", "2223", "", storage.ErrNotFound},
		{"Too short", "123", "", storage.ErrPrefixTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ExpandHash(ctx, types.HashPrefix(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHash, got)
		})
	}
}
