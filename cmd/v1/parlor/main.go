package main

import "github.com/parlorchat/parlor/internal/v1/cli"

func main() {
	cli.Execute()
}
