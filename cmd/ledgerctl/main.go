package main

import (
	"os"

	"github.com/riceledger/riceledger/cmd/ledgerctl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
