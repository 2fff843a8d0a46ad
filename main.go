package main

import "github.com/jmehdipour/payment-alerts/cmd"

func main() {
	cmd.Execute()
}
