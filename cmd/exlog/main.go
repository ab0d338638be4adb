package main

import "github.com/vietddude/exlog/internal/cli"

func main() {
	cli.Execute()
}
