package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"gitledger/pkg/core"
	"gitledger/pkg/storage"
	"gitledger/pkg/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 存在性缓存
// 内容寻址的数据一旦写入就不会改变，所以 "存在" 可以安全地缓存
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	logger  *zap.Logger
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
	// KeyPrefix 默认为 "gl:obj:"
	KeyPrefix string
}

func NewCachedStore(backend storage.Store, cfg Config, logger *zap.Logger) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "gl:obj:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
		prefix:  prefix,
		logger:  logger.Named("cache"),
	}, nil
}

func (s *CachedStore) cacheKey(hash types.Hash) string {
	return s.prefix + string(hash)
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	key := s.cacheKey(hash)

	// 1. 查 Redis；故障时降级为直接查底层存储
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		s.logger.Warn("redis unavailable, falling back to backend", zap.Error(err))
	} else if val > 0 {
		return true, nil
	}

	// 2. 缓存未命中，查底层存储
	found, err := s.backend.Has(ctx, hash)
	if err != nil {
		return false, err
	}

	// 3. 异步回填，不阻塞主流程
	if found {
		go s.fill(key)
	}

	return found, nil
}

func (s *CachedStore) fill(key string) {
	// 上层 ctx 取消后回填仍然要完成
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, key, "1", s.ttl).Err(); err != nil {
		s.logger.Debug("cache fill failed", zap.String("key", key), zap.Error(err))
	}
}

// Put 利用 Has 的缓存进行预检，只有底层写入成功才写缓存
func (s *CachedStore) Put(ctx context.Context, obj core.Addressable) error {
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.cacheKey(obj.ID()), "1", s.ttl).Err(); err != nil {
		s.logger.Debug("cache set failed", zap.String("hash", obj.ID().String()), zap.Error(err))
	}
	return nil
}

// Get 透传；只缓存存在性，不缓存内容
func (s *CachedStore) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	return s.backend.Get(ctx, hash)
}

func (s *CachedStore) ExpandHash(ctx context.Context, prefix types.HashPrefix) (types.Hash, error) {
	return s.backend.ExpandHash(ctx, prefix)
}

// Close 释放 Redis 连接，不关闭底层存储
func (s *CachedStore) Close() error {
	return s.client.Close()
}
