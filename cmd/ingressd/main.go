// Command ingressd watches an ingress directory and files everything that
// lands in it under a destination tree.
package main

import (
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
