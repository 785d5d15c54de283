// Command agritrace serves the traceability API and runs its maintenance
// tasks against the configured store.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
