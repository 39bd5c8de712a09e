package main

import (
	"fmt"
	"os"

	"github.com/fahmaliyi/pwmgr/cli"
)

func main() {
	if err := cli.DisableCoreDumps(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not disable core dumps:", err)
	}

	if err := cli.NewApp().Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
