package main

import "github.com/sergev/cyton/cmd"

func main() {
	cmd.Execute()
}
