package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

type cliConfig struct {
	configPath  string
	envPrefix   string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&cfg.envPrefix, "env-prefix", "INGEST", "Environment variable prefix for config overrides")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.envPrefix == "" {
		return nil, errors.New("env-prefix must not be empty")
	}
	return cfg, nil
}

func printVersion() { fmt.Println(version) }
