package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gitledger/pkg/core"
	"gitledger/pkg/types"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrAmbiguousHash  = errors.New("ambiguous hash prefix")
	ErrPrefixTooShort = errors.New("hash prefix too short")
)

// MinPrefixLen 是 ExpandHash 接受的最短前缀
const MinPrefixLen = 4

// Store 是内容寻址的 blob store
// 地址是所存字节的 SHA-256，可以是本地磁盘、S3 或带缓存的组合
type Store interface {
	// Put 持久化一个可寻址单元；地址已经由调用方算好，重复写入是 no-op
	Put(ctx context.Context, obj core.Addressable) error

	// Get 根据地址读取数据；调用方负责 Close
	Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error)

	// Has 检查地址是否存在 (用于去重逻辑)
	Has(ctx context.Context, hash types.Hash) (bool, error)

	// ExpandHash 把短前缀扩展为完整地址
	ExpandHash(ctx context.Context, prefix types.HashPrefix) (types.Hash, error)
}

// ReadAll 读取一个地址的全部字节
func ReadAll(ctx context.Context, s Store, hash types.Hash) ([]byte, error) {
	rc, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", hash, err)
	}
	return data, nil
}
