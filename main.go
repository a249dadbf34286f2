// The main package for the shelfbase executable.
package main

import (
	"os"

	"github.com/shelfbase/catalog-harvester/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
