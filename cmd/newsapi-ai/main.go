package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "newsapi-ai"}

	root.AddCommand(serveCMD(), migrateCMD())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
