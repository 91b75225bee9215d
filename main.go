package main

import (
	"fmt"
	"os"

	"github.com/recapio/recapio/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "recapio: %v\n", err)
		os.Exit(1)
	}
}
