package main

import (
	"fmt"
	"os"

	"gitledger/cmd/gitledger/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gitledger:", err)
		os.Exit(1)
	}
}
