package main

import (
	"os"

	"github.com/scalarorg/cosmos-gmp-relayer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
