// The main package for the harvester executable.
package main

import (
	"github.com/akhundov/arenda-harvester/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
