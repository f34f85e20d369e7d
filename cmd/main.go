package main

import "github.com/Gopher0727/MiniChat/internal/cli"

func main() {
	cli.Execute()
}
