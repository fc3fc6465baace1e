// bunnyd - HTTP to AMQP 0-9-1 bridge
package main

import "github.com/getbunnyd/bunnyd/pkg/cli"

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	cli.Execute(cli.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate})
}
