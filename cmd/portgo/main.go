package main

import "github.com/cjeanneret/PortGo/cmd/portgo/cmd"

func main() {
	cmd.Execute()
}
