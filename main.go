package main

import (
	"github.com/nhle/smstask/cmd"
)

// version will be set at build time with -ldflags.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
