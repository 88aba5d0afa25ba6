package main

import "repobuild/internal/cli"

func main() {
	cli.Execute()
}
