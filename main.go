package main

import "github.com/kozaktomas/photo-matcher/cmd"

func main() {
	cmd.Execute()
}
