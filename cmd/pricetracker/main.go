package main

import "crypto-price-tracker/internal/cli"

func main() {
	cli.Execute()
}
