package main

import "github.com/eshaffer321/fleetclient-go/cmd/fleetctl/cmd"

func main() {
	cmd.Execute()
}
