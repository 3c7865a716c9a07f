package main

import "pipesh.dev/pipesh/cmd"

func main() {
	cmd.Execute()
}
