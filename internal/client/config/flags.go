package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/chatkeeper/internal/flagx"
)

// parseFlags overlays cfg with -d and -l. Other flags on the command line
// are ignored.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("chatkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local database file")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")

	return fs.Parse(flagx.FilterArgs(args, []string{"-d", "-l"}))
}
