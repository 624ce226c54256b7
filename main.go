package main

import "landmark-quest/cmd"

func main() {
	cmd.Execute()
}
