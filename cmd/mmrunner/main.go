package main

import (
	"os"

	"github.com/kbukum/mmrunner/internal/commands"
)

func main() {
	os.Exit(commands.Execute())
}
