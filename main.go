package main

import "github.com/clinicore/ms-go-paylinks/cmd"

func main() {
	cmd.Execute()
}
