// git-remote-ledger 由 git 在遇到 ledger:: 或 ledger:// 远端时调用
package main

import (
	"fmt"
	"os"

	"gitledger/cmd/gitledger/commands"
)

func main() {
	args := append([]string{"remote-helper"}, os.Args[1:]...)
	if err := commands.ExecuteArgs(args); err != nil {
		fmt.Fprintln(os.Stderr, "git-remote-ledger:", err)
		os.Exit(1)
	}
}
