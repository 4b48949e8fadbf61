package main

import "github.com/marketpulse/marketpulse-x/cmd"

func main() {
	cmd.Execute()
}
