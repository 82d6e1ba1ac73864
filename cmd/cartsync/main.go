// Command cartsync runs the cart reconciliation engine against a shared
// SQLite database.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cartsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
