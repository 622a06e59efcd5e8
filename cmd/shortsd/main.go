// Package main is the entry point for shortsd.
package main

import (
	"os"

	"github.com/ricky22407-lang/YoutubeShort-sub000/cmd/shortsd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
