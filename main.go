// The main package for the netcapture executable.
package main

import (
	"github.com/croque-scale/netcapture/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
