package main

import (
	"os"

	"github.com/ownlingo/ownlingo/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
