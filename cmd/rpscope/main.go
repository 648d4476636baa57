// Command rpscope drives the scope module, or a simulation of it, from the
// command line.
package main

import "github.com/sarchlab/rpscope/cmd/rpscope/cmd"

func main() {
	cmd.Execute()
}
