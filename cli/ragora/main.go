package main

import (
	"fmt"
	"os"

	ragoracmder "github.com/papercomputeco/ragora/cmd/ragora"
)

func main() {
	cmd := ragoracmder.NewRagoraCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
