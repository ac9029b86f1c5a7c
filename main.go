// The main package for the moltgraph executable.
package main

import (
	"github.com/moltgraph/moltgraph/cmd"
)

func main() {
	cmd.Execute()
}
