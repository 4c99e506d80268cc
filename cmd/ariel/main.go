package main

import (
	"fmt"
	"os"

	"github.com/eugenenazirov/ariel/internal/cli"
)

func main() {
	if err := cli.New(os.Stdout, os.Stderr).Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ariel: error: %v\n", err)
		os.Exit(1)
	}
}
