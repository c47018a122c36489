package main

import (
	"os"

	"QuantFeed/cmd/quantfeed/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
