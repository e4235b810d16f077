package main

import "github.com/vibast-solutions/ms-go-fan-billing/cmd"

func main() {
	cmd.Execute()
}
