package commands

import (
	"fmt"
	"os"

	"gitledger/pkg/exporter"
	"gitledger/pkg/ledger"
	"gitledger/pkg/types"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index [container]",
	Short: "Show the current index of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := types.ParseContainerID(args[0])
		if err != nil {
			return fmt.Errorf("invalid container %q: %w", args[0], err)
		}

		rd, rec, err := GL.Remote(container).LoadIndex(cmd.Context())
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Println("No index published.")
			return nil
		}
		fmt.Printf("Record:     %s\n", *rec)
		return exporter.PrintIndex(rd, os.Stdout)
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records [container]",
	Short: "List the active ledger records of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := types.ParseContainerID(args[0])
		if err != nil {
			return fmt.Errorf("invalid container %q: %w", args[0], err)
		}

		records, err := GL.Ledger.RecordSet(cmd.Context(), container)
		if err != nil {
			return err
		}
		ledger.SortRecords(records)
		return exporter.PrintRecords(records, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(recordsCmd)
}
