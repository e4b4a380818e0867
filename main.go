package main

import "github.com/AzielCF/az-connect/cmd"

func main() {
	cmd.Execute()
}
