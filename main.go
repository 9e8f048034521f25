// ./main.go
package main

import (
	"github.com/darkfathom/scribe-cli/cmd"
)

// main is the entry point for the Scribe CLI application.
func main() {
	cmd.Execute()
}
