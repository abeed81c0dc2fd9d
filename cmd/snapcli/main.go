// snapcli bundles, validates, and serves snap projects.
package main

import (
	"os"

	"github.com/parimoosavi/snaps-monorepo/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
