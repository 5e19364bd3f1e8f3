package main

import "github.com/nfrund/freemember/cmd/freemember/cmd"

func main() {
	cmd.Execute()
}
