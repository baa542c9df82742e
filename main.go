// The main package for the audio-gateway executable.
package main

import (
	"github.com/JakeFAU/audio-gateway/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
