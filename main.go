// The main package for the tweetstream executable.
package main

import (
	"github.com/JakeFAU/tweetstream/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
