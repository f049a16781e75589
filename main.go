package main

import "karaoke/cmd"

func main() {
	cmd.Execute()
}
