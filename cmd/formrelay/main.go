package main

import (
	"os"

	"github.com/telhawk-systems/formrelay/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
