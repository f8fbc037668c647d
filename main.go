package main

import "github.com/venuetix-solutions/ms-go-orders/cmd"

func main() {
	cmd.Execute()
}
