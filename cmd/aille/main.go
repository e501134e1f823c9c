package main

import "github.com/ppiankov/aille/internal/cli"

func main() {
	cli.Execute()
}
