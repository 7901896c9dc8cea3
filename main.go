package main

import "gossip_node/cmd"

func main() {
	cmd.Execute()
}
