package main

import "archivist/cmd/archivist/cmd"

func main() {
	cmd.Execute()
}
