package main

import "github.com/soaringjerry/Spotcheck/internal/cli"

func main() {
	cli.Execute()
}
