package main

import "github.com/EmmanuelOluwafemi/anchor-escrow/internal/cli"

func main() {
	cli.Execute()
}
