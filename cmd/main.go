// Command tryout-service serves timed exam packages over an RPC surface,
// with migrate and seed subcommands for operating the backing database.
package main

import (
	"os"

	"tryout-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
