package main

import (
	"os"

	"github.com/armlab/ulftrack/internal/cmd"
)

// Build metadata, injected at link time:
//
//	go build -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=..."
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
