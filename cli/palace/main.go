package main

import (
	"os"

	palacecmder "github.com/papercomputeco/memorypalace/cmd/palace"
)

func main() {
	cmd := palacecmder.NewPalaceCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
