package main

import (
	"os"

	"github.com/solatis/tidegate/cmd/tidegate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
