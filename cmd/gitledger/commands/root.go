package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gitledger/pkg/app"
	"gitledger/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	GL *app.App
)

var rootCmd = &cobra.Command{
	Use:           "gitledger",
	Short:         "gitledger: git repositories on a blob store and a ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(cfgFile); err != nil {
			return err
		}

		logger, err := app.NewLogger(viper.GetString("log.level"))
		if err != nil {
			return err
		}
		if used := config.Used(); used != "" {
			logger.Debug("using config file: " + used)
		}

		GL, err = app.NewApp(cmd.Context(), logger)
		if err != nil {
			return fmt.Errorf("failed to initialize gitledger: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if GL == nil {
			return nil
		}
		defer GL.Logger.Sync()
		return GL.Close()
	},
}

// Execute 是入口
func Execute() error {
	return ExecuteArgs(os.Args[1:])
}

// ExecuteArgs 用给定参数运行，git-remote-ledger 借此复用 remote-helper 子命令
func ExecuteArgs(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gitledger/config.yaml)")

	// 2. 常用配置项也可以用参数覆盖
	rootCmd.PersistentFlags().String("storage-path", "", "Directory to store objects")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	for key, flag := range map[string]string{
		"storage.path": "storage-path",
		"log.level":    "log-level",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}
