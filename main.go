// The main package for the upctracker executable.
package main

import (
	"github.com/JakeFAU/upc-citation-tracker/cmd"
)

func main() {
	cmd.Execute()
}
