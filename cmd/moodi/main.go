// Package main is the single-binary entrypoint for MOODI.
package main

import "github.com/moodi-app/moodi/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
