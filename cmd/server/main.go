package main

import "github.com/Tyrowin/officechat/internal/cli"

func main() {
	cli.Execute()
}
