// main.go
//
// Entry point that delegates CLI handling to the cobra root command in root.go

package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
