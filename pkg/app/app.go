package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gitledger/pkg/engine"
	"gitledger/pkg/ledger"
	"gitledger/pkg/ledger/ledgerrpc"
	"gitledger/pkg/ledger/sqlledger"
	"gitledger/pkg/remote"
	"gitledger/pkg/storage"
	"gitledger/pkg/storage/cache"
	"gitledger/pkg/storage/disk"
	"gitledger/pkg/storage/s3"
	"gitledger/pkg/types"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App 是整个应用程序的依赖容器
// 它持有 blob store 和账本客户端，按配置组装
type App struct {
	Store  storage.Store
	Ledger ledger.Client
	Logger *zap.Logger

	closers []io.Closer
}

// NewLogger 构建写到 stderr 的 logger
// stdout 是 remote helper 的协议通道，任何日志都不能写到那里
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	return cfg.Build()
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 1. 初始化存储层
	store, err := initStore(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	a := &App{Store: store, Logger: logger}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	// 2. 初始化账本
	client, closer, err := initLedger(ctx, logger)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to init ledger: %w", err), a.Close())
	}
	a.Ledger = client
	a.closers = append(a.closers, closer)

	logger.Debug("app initialized",
		zap.String("storage", viper.GetString("storage.type")),
		zap.String("ledger", viper.GetString("ledger.type")),
	)
	return a, nil
}

// Remote 为一个容器创建远端会话
func (a *App) Remote(container types.ContainerID) *remote.Remote {
	return remote.New(a.Store, a.Ledger, container, viper.GetString("ledger.signer"), a.Logger)
}

// EngineOptions 从配置读取推送 / 抓取参数
func (a *App) EngineOptions() engine.Options {
	return engine.Options{
		MintConcurrency: viper.GetInt("push.concurrency"),
		StopAtSubmodule: viper.GetBool("fetch.stop_at_submodule"),
	}
}

// Close 关闭所有持有的连接
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	return err
}

func initStore(ctx context.Context, logger *zap.Logger) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)

	switch storeType := viper.GetString("storage.type"); storeType {
	case "disk", "":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage path not set")
		}
		store, err = disk.NewAdapter(path)
	case "s3":
		bucket := viper.GetString("storage.s3.bucket")
		if bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		store, err = s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          bucket,
			AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
			SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
			KeyPrefix:       viper.GetString("storage.s3.prefix"),
			Logger:          logger,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storeType)
	}
	if err != nil {
		return nil, err
	}

	// 可选的 Redis 存在性缓存
	redisURL := viper.GetString("cache.redis_url")
	if redisURL == "" {
		return store, nil
	}
	return cache.NewCachedStore(store, cache.Config{
		RedisURL: redisURL,
		TTL:      viper.GetDuration("cache.ttl"),
	}, logger)
}

// DatabaseConfig 读取 database.* 配置
func DatabaseConfig() sqlledger.Config {
	return sqlledger.Config{
		Driver:   viper.GetString("database.driver"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
		Path:     viper.GetString("database.path"),
	}
}

// OpenDatabase 连接账本数据库；SQLite 文件所在目录会被创建
func OpenDatabase(ctx context.Context, logger *zap.Logger) (*sqlledger.DB, error) {
	cfg := DatabaseConfig()
	if cfg.Driver == "sqlite" && cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, err
		}
	}
	return sqlledger.NewDB(ctx, cfg, logger)
}

func initLedger(ctx context.Context, logger *zap.Logger) (ledger.Client, io.Closer, error) {
	switch ledgerType := viper.GetString("ledger.type"); ledgerType {
	case "sql", "":
		db, err := OpenDatabase(ctx, logger)
		if err != nil {
			return nil, nil, err
		}
		return sqlledger.New(db, logger), db, nil
	case "grpc":
		endpoint := viper.GetString("ledger.endpoint")
		if endpoint == "" {
			return nil, nil, fmt.Errorf("ledger endpoint is required")
		}
		client, err := ledgerrpc.NewClient(endpoint)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ledger type: %s", ledgerType)
	}
}
