package main

import "github.com/ahmetcoskunkizilkaya/rumorwatch/internal/cli"

func main() {
	cli.Execute()
}
