// The main package for the gallery-scraper executable.
package main

import (
	"github.com/JakeFAU/gallery-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
