package internal

import (
	"fmt"
	"os"
	"strings"
)

const Version = "0.4.0"

// PrintUsage writes the command overview to stderr.
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `doubles - Semantic near-duplicate detection for text records

Version: %s

USAGE:
    doubles [global options] <command> [command options]

GLOBAL OPTIONS:
    -config <path>
        Path to config file (default: ~/.doubles/config/doubles.yaml)

    -version
        Show version information

    -h, -help
        Show this help message

COMMANDS:
    run
        Find groups of near-duplicate records in CSV, JSONL or text input

    score
        Score two texts against the duplicate threshold

    history
        List stored runs

    show
        Print a stored run again

    init
        Write a config template

EXAMPLES:
    # Group duplicates in a CSV file with id,text columns
    doubles run questions.csv

    # Stricter threshold, JSON report to a compressed file
    doubles run -threshold 0.92 -format json -output report.json.zst questions.csv

    # Every part of a sharded dataset
    doubles run -input 'data/**/*.jsonl.gz'

    # Compare two texts
    doubles score "Is the lid dishwasher safe?" "Can the lid go in the dishwasher?"

    # Show the last run again, duplicates only
    doubles history -limit 1
    doubles show -duplicates-only 3f2a

For detailed help on each command, use:
    doubles <command> -help
`, Version)
}

// StringList is a flag.Value that collects multiple strings
type StringList []string

func (s *StringList) String() string {
	return strings.Join(*s, ",")
}

func (s *StringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// HasFlag reports whether args contain one of names before a "--".
func HasFlag(args []string, names ...string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		for _, name := range names {
			if arg == name || arg == "-"+name || strings.HasPrefix(arg, name+"=") || strings.HasPrefix(arg, "-"+name+"=") {
				if strings.HasSuffix(arg, "=false") {
					return false
				}
				return true
			}
		}
	}
	return false
}
