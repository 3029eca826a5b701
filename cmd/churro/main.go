// Command churro inspects and maintains churro repositories.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "churro:", err)
		os.Exit(exitCode(err))
	}
}
