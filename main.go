package main

import (
	"os"

	"github.com/thiagokokada/gitcore/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
