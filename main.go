package main

import "github.com/AvaProtocol/ap-userop/cmd"

func main() {
	cmd.Execute()
}
