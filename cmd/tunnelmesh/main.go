package main

import "github.com/tunnelmesh/relay/cmd/tunnelmesh/cmd"

func main() {
	cmd.Execute()
}
