// Package main is the livevision command.
package main

import (
	"log"
	"os"

	"go.viam.com/livevision/cli"
	_ "go.viam.com/livevision/components/register"
	_ "go.viam.com/livevision/services/register"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
