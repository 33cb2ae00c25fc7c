package main

import "vllmfleet/cmd"

func main() {
	cmd.Execute()
}
