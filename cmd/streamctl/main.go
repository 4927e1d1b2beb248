// Package main implements streamctl, the command line client for the stream catalog.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/arkilian/streamcatalog/internal/cli"
)

func main() {
	if err := cli.NewRoot(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
