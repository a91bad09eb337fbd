package main

import (
	"github.com/Godsmith/hatch/cmd"
)

func main() {
	cmd.Execute()
}
