// Package main provides the fixtures CLI.
package main

import "github.com/mesh-intelligence/fixtures/internal/cli"

func main() {
	cli.Execute()
}
