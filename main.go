// The main package for the emblem-crawler executable.
package main

import (
	"github.com/JakeFAU/emblem-crawler/cmd"
)

func main() {
	cmd.Execute()
}
