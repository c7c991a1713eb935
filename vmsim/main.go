// Command vmsim replays memory-access traces against a simulated machine.
package main

import "github.com/sarchlab/vmkernel/vmsim/cmd"

func main() {
	cmd.Execute()
}
