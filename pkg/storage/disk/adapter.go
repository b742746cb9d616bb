package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gitledger/pkg/core"
	"gitledger/pkg/storage"
	"gitledger/pkg/types"

	"github.com/klauspost/compress/zstd"
)

// Adapter 实现了 storage.Store 接口
// 数据以 zstd 压缩存放，地址仍然是未压缩字节的哈希
type Adapter struct {
	rootPath string // 比如: ~/.gitledger/objects
	encoder  *zstd.Encoder
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}

	// EncodeAll 可以并发调用
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &Adapter{rootPath: root, encoder: enc}, nil
}

// layout 返回哈希对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: hash "aabbcc..." -> root/aa/bbcc...
func (s *Adapter) layout(hash types.Hash) string {
	h := string(hash)
	if len(h) < 2 {
		return filepath.Join(s.rootPath, h)
	}
	return filepath.Join(s.rootPath, h[:2], h[2:])
}

func (s *Adapter) Put(ctx context.Context, obj core.Addressable) error {
	hash := obj.ID()
	if !hash.IsValid() {
		return fmt.Errorf("invalid content address %q", hash)
	}
	targetPath := s.layout(hash)

	// 1. 检查是否存在 (幂等性)
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 3. 原子写入：先写临时文件再 Rename，文件要么不存在要么完整
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	compressed := s.encoder.EncodeAll(obj.Bytes(), nil)
	if _, err := tempFile.Write(compressed); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// 4. 移动到最终位置
	return os.Rename(tempFile.Name(), targetPath)
}

// zstdReadCloser 关闭时同时释放解码器和文件
type zstdReadCloser struct {
	*zstd.Decoder
	file *os.File
}

func (r *zstdReadCloser) Close() error {
	r.Decoder.Close()
	return r.file.Close()
}

func (s *Adapter) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	f, err := os.Open(s.layout(hash))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open %s: %w", hash, err)
	}
	return &zstdReadCloser{Decoder: dec, file: f}, nil
}

func (s *Adapter) Has(ctx context.Context, hash types.Hash) (bool, error) {
	_, err := os.Stat(s.layout(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ExpandHash 在分片目录里查找唯一匹配前缀的地址
func (s *Adapter) ExpandHash(ctx context.Context, prefix types.HashPrefix) (types.Hash, error) {
	p := strings.ToLower(string(prefix))
	if len(p) < storage.MinPrefixLen {
		return "", fmt.Errorf("%w: %q", storage.ErrPrefixTooShort, p)
	}

	entries, err := os.ReadDir(filepath.Join(s.rootPath, p[:2]))
	if os.IsNotExist(err) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	var match types.Hash
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "temp-") || !strings.HasPrefix(name, p[2:]) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %s", storage.ErrAmbiguousHash, p)
		}
		match = types.Hash(p[:2] + name)
	}

	if match == "" {
		return "", storage.ErrNotFound
	}
	return match, nil
}
