package main

import "github.com/RyanBlaney/cover-benchmark/cmd"

func main() {
	cmd.Execute()
}
