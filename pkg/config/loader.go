package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量前缀 (GITLEDGER_LEDGER_ENDPOINT 等)
const EnvPrefix = "GITLEDGER"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
// 不向 stdout 输出任何内容：remote helper 用 stdout 和 git 通信
func Load(cfgFile string) error {
	// 1. 设置默认值
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：当前目录，$GIT_DIR/gitledger，~/.gitledger
		viper.AddConfigPath(".")
		if gitDir := os.Getenv("GIT_DIR"); gitDir != "" {
			viper.AddConfigPath(filepath.Join(gitDir, "gitledger"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".gitledger"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 3. 读取环境变量，"ledger.endpoint" -> GITLEDGER_LEDGER_ENDPOINT
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件；找不到不算错，默认值和环境变量足够运行
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error config file: %w", err)
	}
	return nil
}

// Used 返回实际加载的配置文件，没有时为空
func Used() string {
	return viper.ConfigFileUsed()
}

func setDefaults() {
	// 存储
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", defaultDataPath("objects"))
	viper.SetDefault("storage.s3.region", "us-east-1")

	// 缓存 (redis_url 为空表示不启用)
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	// 账本
	viper.SetDefault("ledger.type", "sql")
	viper.SetDefault("ledger.endpoint", "localhost:50051")
	viper.SetDefault("ledger.signer", defaultSigner())

	// 数据库 (ledger.type = sql 或 ledger-server)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", defaultDataPath("ledger.db"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// 推送 / 抓取
	viper.SetDefault("push.concurrency", 4)
	viper.SetDefault("fetch.stop_at_submodule", false)

	viper.SetDefault("refs.hidden", []string{})
	viper.SetDefault("log.level", "warn")
}

// defaultDataPath 返回 ~/.gitledger 下的路径
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		wd, _ := os.Getwd()
		return filepath.Join(wd, ".gitledger", name)
	}
	return filepath.Join(home, ".gitledger", name)
}

func defaultSigner() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}
