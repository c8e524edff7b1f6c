// Package main provides the tradegate server binary.
//
// The same binary runs on the local host and on the cloud standby; the host
// kind and the shared lease store decide which one acts on signals.
package main

import (
	"os"

	"tradegate.io/server/cmd/tradegate-server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
