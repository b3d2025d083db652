package main

import (
	"fmt"
	"os"

	"github.com/Subaskar-S/High-Performance-Blockchain-Node/cmd/bftnode/cli"
)

func main() {
	if err := cli.NewCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
