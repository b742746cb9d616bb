package commands

import (
	"os"

	"gitledger/pkg/helper"
	"gitledger/pkg/ignore"
	"gitledger/pkg/localrepo"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var remoteHelperCmd = &cobra.Command{
	Use:   "remote-helper [remote] [url]",
	Short: "Speak the git remote helper protocol on stdin/stdout",
	Long: `Invoked by git as git-remote-ledger. The url names the ledger container,
for example ledger://7 or ledger::7.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[len(args)-1]
		container, err := helper.ParseURL(url)
		if err != nil {
			return err
		}

		// 1. 本地仓库：git 会为 helper 设置 GIT_DIR
		gitDir := os.Getenv("GIT_DIR")
		path := gitDir
		if path == "" {
			path = "."
		}
		repo, err := localrepo.Open(path)
		if err != nil {
			return err
		}

		// 2. 隐藏 ref 规则
		hidden, err := ignore.NewMatcher(gitDir, viper.GetStringSlice("refs.hidden")...)
		if err != nil {
			return err
		}

		GL.Logger.Debug("remote helper started",
			zap.String("remote", args[0]),
			zap.Stringer("container", container),
		)

		h := helper.New(repo, GL.Remote(container), helper.Options{
			Engine: GL.EngineOptions(),
			Hidden: hidden,
		}, GL.Logger, os.Stdin, os.Stdout, os.Stderr)
		return h.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(remoteHelperCmd)
}
