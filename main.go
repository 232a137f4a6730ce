package main

import "github.com/agentic-research/snowpak/cmd"

func main() {
	cmd.Execute()
}
