package main

import "github.com/pennlinc/batchctl/cmd/batchctl/commands"

func main() {
	commands.Execute()
}
