package main

import "insurance-agent/internal/cli"

func main() {
	cli.Execute()
}
