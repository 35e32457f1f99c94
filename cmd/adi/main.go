package main

import "github.com/OpenTraceLab/OpenTraceADI/cmd/adi/cmd"

func main() {
	cmd.Execute()
}
