package main

import "github.com/agentic-news/reaper/internal/cli"

func main() {
	cli.Execute()
}
