// Command memz runs the Memz server and its maintenance tasks: schema
// migrations, user provisioning, and export/import of the logs document.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
