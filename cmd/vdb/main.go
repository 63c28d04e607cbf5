package main

import "vdb/internal/cli"

func main() {
	cli.Execute()
}
