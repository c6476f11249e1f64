// Package main provides the isofetch command, which resolves job lists of
// distributions into current image URLs and downloads them.
package main

import (
	"log"
	"os"

	"github.com/clean-dependency-project/isofetch/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
