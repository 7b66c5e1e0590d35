package main

import (
	"fmt"
	"os"

	"github.com/capturectl/capturectl/cmd"
	"github.com/capturectl/capturectl/internal/buildinfo"
	"github.com/capturectl/capturectl/internal/conf"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	bi := buildinfo.NewContext(version, buildDate)

	// CAPTURECTL_CONFIG names an explicit config file; otherwise the default
	// locations are searched and a config.yaml is created when none exists.
	settings, err := conf.Load(os.Getenv("CAPTURECTL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings, bi)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Command execution error: %v\n", err)
		os.Exit(1)
	}
}
