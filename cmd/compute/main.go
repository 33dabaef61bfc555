package main

import "github.com/jacentio/compute/internal/cli"

func main() {
	cli.Execute()
}
