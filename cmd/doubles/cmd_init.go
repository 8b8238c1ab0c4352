package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/DreamCats/doubles/cmd/doubles/internal"
	"github.com/DreamCats/doubles/internal/config"
)

// handleInit implements the init subcommand
func handleInit(configPath string, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    doubles [-config <path>] init

DESCRIPTION:
    Write a commented config template. An existing file is left alone.
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path, err := internal.ConfigPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	created, err := config.WriteDefaultTemplate(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("Created config at %s\n\n", path)
	} else {
		fmt.Printf("Config already exists at %s\n\n", path)
	}
	internal.PrintConfigHint(path)
}
