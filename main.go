package main

import "github.com/frahmantamala/billpay-relay/cmd"

func main() {
	cmd.Execute()
}
