package main

import (
	"github.com/ColonelBlimp/tonemeter/cmd"
	"github.com/ColonelBlimp/tonemeter/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
