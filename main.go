package main

import "hulld/cli"

func main() {
	cli.Execute()
}
