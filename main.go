package main

import (
	"os"

	"github.com/vstratful/orchat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
