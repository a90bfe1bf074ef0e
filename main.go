package main

import "github.com/jonandersen/tda/cmd"

func main() {
	cmd.Execute()
}
