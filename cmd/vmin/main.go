package main

import "github.com/OpenTraceLab/OpenTraceVmin/cmd/vmin/cmd"

func main() {
	cmd.Execute()
}
