package main

import (
	"os"

	"sqlcoach/cmd/sqlcoach/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
