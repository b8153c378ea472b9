// Command sharkbench benchmarks language runtimes and web frameworks running
// in containers and maintains the result tables.
package main

import (
	"fmt"
	"os"
	"runtime/debug"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\nsharkbench crashed: %v\n\n%s\n", r, debug.Stack())
			fmt.Fprintln(os.Stderr, "Containers started by this run may still be up; check `docker ps`.")
			os.Exit(2)
		}
	}()

	Execute()
}
