package main

import "stepflow/cmd/stepflow/commands"

func main() {
	commands.Execute()
}
