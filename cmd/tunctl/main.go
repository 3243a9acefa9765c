package main

import (
	"os"

	"github.com/koltyakov/tunctl/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
