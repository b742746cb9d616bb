package commands

import (
	"fmt"
	"os"

	"gitledger/pkg/exporter"
	"gitledger/pkg/types"

	"github.com/spf13/cobra"
)

var catRaw bool

var catCmd = &cobra.Command{
	Use:   "cat [address]",
	Short: "Show a stored object by content address",
	Long:  `Print a git object or index snapshot from the blob store. The address may be abbreviated.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// 1. 展开短地址
		hash := types.Hash(args[0])
		if !hash.IsValid() {
			full, err := GL.Store.ExpandHash(ctx, types.HashPrefix(args[0]))
			if err != nil {
				return fmt.Errorf("cannot resolve %s: %w", args[0], err)
			}
			hash = full
		}

		// 2. 输出
		exp := exporter.NewExporter(GL.Store)
		if catRaw {
			return exp.ExportRaw(ctx, hash, os.Stdout)
		}
		return exp.PrintObject(ctx, hash, os.Stdout)
	},
}

func init() {
	catCmd.Flags().BoolVar(&catRaw, "raw", false, "write the raw git content of the object")
	rootCmd.AddCommand(catCmd)
}
