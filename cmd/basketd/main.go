package main

import (
	"os"

	"github.com/tillworks/basketd/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
