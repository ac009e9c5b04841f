// The main package for the webscout executable.
package main

import (
	"github.com/JakeFAU/webscout/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
