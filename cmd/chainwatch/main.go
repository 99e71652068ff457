package main

import "github.com/vietddude/chainwatch/internal/cli"

func main() {
	cli.Execute()
}
