package main

import "github.com/frahmantamala/content-payments/cmd"

func main() {
	cmd.Execute()
}
