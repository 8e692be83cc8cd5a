// Command sitepipe runs the sitepipe job pipeline: the HTTP API, the lease
// scheduler and the operator tools around them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
